package service

import (
	"context"

	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/cache"
	"docchat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// EventForwarder exports bus events to other processes. The NATS publisher implements it.
type EventForwarder interface {
	Publish(ctx context.Context, event events.Event) error
}

type IConsumerService interface {
	Consume(ctx context.Context) error
	// HandleRemote applies an event that originated on another instance.
	HandleRemote(ctx context.Context, event events.Event) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	cache      cache.RetrievalCache
	forwarder  EventForwarder
	logger     logger.ILogger
}

// NewConsumerService wires the bus consumer. forwarder may be nil when export is disabled.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	retrievalCache cache.RetrievalCache,
	forwarder EventForwarder,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		cache:      retrievalCache,
		forwarder:  forwarder,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	event, err := events.Decode(msg.Payload)
	if err != nil {
		cs.logger.Error("CONSUMER", "Failed to decode message", map[string]interface{}{"uuid": msg.UUID, "error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	cs.apply(ctx, event)

	if cs.forwarder != nil {
		if err := cs.forwarder.Publish(ctx, event); err != nil {
			cs.logger.Warn("CONSUMER", "Failed to export event", map[string]interface{}{"type": event.Type, "error": err.Error()})
		}
	}
	msg.Ack()
}

func (cs *consumerService) HandleRemote(ctx context.Context, event events.Event) error {
	cs.apply(ctx, event)
	return nil
}

func (cs *consumerService) apply(ctx context.Context, event events.Event) {
	switch event.EventType() {
	case events.DocumentDeleted:
		userId, err := uuid.Parse(events.String(event, "user_id"))
		if err != nil {
			cs.logger.Warn("CONSUMER", "DOCUMENT_DELETED without user_id", map[string]interface{}{"payload": event.Payload()})
			return
		}
		cs.cache.InvalidateUser(ctx, userId)
		cs.logger.Info("CONSUMER", "Retrieval cache invalidated", map[string]interface{}{
			"user_id":     userId.String(),
			"document_id": events.String(event, "document_id"),
		})

	case events.ChatTurnCompleted:
		cs.logger.Debug("CONSUMER", "Chat turn recorded", event.Payload())
	}
}
