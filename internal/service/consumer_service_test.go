package service

import (
	"context"
	"testing"
	"time"

	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/cache"
	"docchat-be/pkg/chat"
	"docchat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumerService_InvalidatesCacheAndForwards(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	retrievalCache := cache.NewMemoryCache(time.Minute)
	owner, other := uuid.New(), uuid.New()
	ownerKey := cache.Key(owner, "d1c1", "q", 5)
	otherKey := cache.Key(other, "d1c1", "q", 5)
	retrievalCache.Set(context.Background(), owner, ownerKey, []chat.ContextItem{{Filename: "a"}})
	retrievalCache.Set(context.Background(), other, otherKey, []chat.ContextItem{{Filename: "b"}})

	forwarder := &fakePublisher{}
	consumer := NewConsumerService(pubSub, "topic", retrievalCache, forwarder, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, consumer.Consume(ctx))

	publisher := NewPublisherService("topic", pubSub)
	require.NoError(t, publisher.Publish(ctx, events.New(events.DocumentDeleted, map[string]interface{}{
		"user_id":     owner.String(),
		"document_id": uuid.NewString(),
	})))

	require.Eventually(t, func() bool {
		_, ok := retrievalCache.Get(ctx, ownerKey)
		return !ok
	}, time.Second, 5*time.Millisecond)
	_, ok := retrievalCache.Get(ctx, otherKey)
	assert.True(t, ok)

	require.Eventually(t, func() bool { return len(forwarder.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, events.DocumentDeleted, forwarder.published()[0].EventType())
}

func TestConsumerService_HandleRemote(t *testing.T) {
	retrievalCache := cache.NewMemoryCache(time.Minute)
	owner := uuid.New()
	key := cache.Key(owner, "d1c1", "q", 5)
	retrievalCache.Set(context.Background(), owner, key, []chat.ContextItem{{Filename: "a"}})

	consumer := NewConsumerService(nil, "topic", retrievalCache, nil, logger.NewNopLogger())
	err := consumer.HandleRemote(context.Background(), events.New(events.DocumentDeleted, map[string]interface{}{"user_id": owner.String()}))
	require.NoError(t, err)

	_, ok := retrievalCache.Get(context.Background(), key)
	assert.False(t, ok)

	assert.NoError(t, consumer.HandleRemote(context.Background(), events.New(events.DocumentDeleted, map[string]interface{}{})))
}
