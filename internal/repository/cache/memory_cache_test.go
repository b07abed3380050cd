package cache

import (
	"context"
	"testing"
	"time"

	"docchat-be/pkg/chat"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_NormalizesQuery(t *testing.T) {
	user := uuid.New()
	assert.Equal(t, Key(user, "d1c1", "What is X?", 5), Key(user, "d1c1", "  what is x? ", 5))
	assert.NotEqual(t, Key(user, "d1c1", "What is X?", 5), Key(user, "d1c1", "What is X?", 3))
	assert.NotEqual(t, Key(user, "d1c1", "q", 5), Key(uuid.New(), "d1c1", "q", 5))
	assert.NotEqual(t, Key(user, CorpusVersion(1, 0), "q", 5), Key(user, CorpusVersion(1, 4), "q", 5))
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	user := uuid.New()
	key := Key(user, "d1c1", "q", 2)

	items := []chat.ContextItem{{Filename: "a.pdf", Score: 0.9}, {Filename: "b.pdf", Score: 0.8}}
	c.Set(ctx, user, key, items)
	items[0].Filename = "mutated"

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "a.pdf", got[0].Filename)

	got[1].Filename = "mutated"
	again, _ := c.Get(ctx, key)
	assert.Equal(t, "b.pdf", again[1].Filename)
}

func TestMemoryCache_InvalidateUserOnlyTouchesThatUser(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	c.Set(ctx, alice, Key(alice, "d1c1", "q1", 5), []chat.ContextItem{{Filename: "a"}})
	c.Set(ctx, alice, Key(alice, "d1c1", "q2", 5), []chat.ContextItem{{Filename: "a"}})
	c.Set(ctx, bob, Key(bob, "d1c1", "q1", 5), []chat.ContextItem{{Filename: "b"}})

	c.InvalidateUser(ctx, alice)

	_, ok := c.Get(ctx, Key(alice, "d1c1", "q1", 5))
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key(alice, "d1c1", "q2", 5))
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key(bob, "d1c1", "q1", 5))
	assert.True(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(20 * time.Millisecond)
	ctx := context.Background()
	user := uuid.New()
	key := Key(user, "d1c1", "q", 1)

	c.Set(ctx, user, key, []chat.ContextItem{{Filename: "a"}})
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}
