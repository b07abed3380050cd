package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"docchat-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cancelChannel = "docchat:chat_cancel"

var ErrFlightNotFound = errors.New("no active generation with that message id")

type flight struct {
	userID uuid.UUID
	cancel context.CancelFunc
}

// Hub tracks running generations so they can be cancelled by message id, from
// this instance or, through Redis, from any other.
type Hub struct {
	mu      sync.RWMutex
	flights map[string]flight
	sockets map[uuid.UUID]int

	// Redis connection for cross-instance cancellation; nil keeps the hub local
	rdb *redis.Client

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		flights: make(map[string]flight),
		sockets: make(map[uuid.UUID]int),
		rdb:     rdb,
		logger:  log,
	}
}

// Register records cancel under messageId until the returned release is called.
func (h *Hub) Register(userID uuid.UUID, messageID string, cancel context.CancelFunc) func() {
	h.mu.Lock()
	h.flights[messageID] = flight{userID: userID, cancel: cancel}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.flights, messageID)
		h.mu.Unlock()
	}
}

// Active is the number of generations running on this instance.
func (h *Hub) Active() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.flights)
}

func (h *Hub) cancelLocal(userID uuid.UUID, messageID string) bool {
	h.mu.RLock()
	f, ok := h.flights[messageID]
	h.mu.RUnlock()

	if !ok || f.userID != userID {
		return false
	}
	f.cancel()
	h.logger.Info("Hub", "Generation cancelled", map[string]interface{}{"user_id": userID, "message_id": messageID})
	return true
}

type cancelRequest struct {
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
}

// Cancel stops the user's generation. When it is not running here the request
// is forwarded to the other instances and assumed delivered.
func (h *Hub) Cancel(ctx context.Context, userID uuid.UUID, messageID string) error {
	if h.cancelLocal(userID, messageID) {
		return nil
	}
	if h.rdb == nil {
		return ErrFlightNotFound
	}

	payload, _ := json.Marshal(cancelRequest{UserID: userID.String(), MessageID: messageID})
	if err := h.rdb.Publish(ctx, cancelChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Failed to forward cancellation", map[string]interface{}{"error": err.Error()})
		return ErrFlightNotFound
	}
	return nil
}

// Run listens for cancellations forwarded by other instances until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		return
	}

	pubsub := h.rdb.Subscribe(ctx, cancelChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var req cancelRequest
			if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
				h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			uid, err := uuid.Parse(req.UserID)
			if err != nil {
				continue
			}
			h.cancelLocal(uid, req.MessageID)
		}
	}
}

func (h *Hub) connected(userID uuid.UUID) {
	h.mu.Lock()
	h.sockets[userID]++
	n := h.sockets[userID]
	h.mu.Unlock()
	h.logger.Info("Hub", "Chat socket connected", map[string]interface{}{"user_id": userID, "sockets": n})
}

func (h *Hub) disconnected(userID uuid.UUID) {
	h.mu.Lock()
	h.sockets[userID]--
	if h.sockets[userID] <= 0 {
		delete(h.sockets, userID)
	}
	h.mu.Unlock()
	h.logger.Info("Hub", "Chat socket disconnected", map[string]interface{}{"user_id": userID})
}
