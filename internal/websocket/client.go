package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/pkg/stream"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

const (
	msgBusy      = "a reply is already in progress"
	msgMalformed = "malformed frame"
	msgCancelled = "generation cancelled"
)

// Streamer produces the events of one chat turn.
type Streamer interface {
	StreamMessage(ctx context.Context, userId uuid.UUID, req *dto.SendChatMessageRequest) (<-chan stream.Event, error)
}

// Client is one chat socket. It runs at most one turn at a time; every event of
// the turn is written as its own text message.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   uuid.UUID
	streamer Streamer
	logger   logger.ILogger

	// Buffered channel of outbound messages.
	send chan []byte

	ctx  context.Context
	stop context.CancelFunc

	mu         sync.Mutex
	cancelTurn context.CancelFunc
	turns      sync.WaitGroup
}

// enqueue blocks until the writer accepts data or the socket is gone.
func (c *Client) enqueue(ev stream.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) readPump() {
	defer c.stop()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("ChatSocket", "Read failed", map[string]interface{}{"user_id": c.userID, "error": err.Error()})
			}
			return
		}

		var frame dto.ChatSocketFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.enqueue(stream.Error("", msgMalformed))
			continue
		}

		switch frame.Type {
		case dto.WsFrameCancel:
			c.cancel()
		case dto.WsFrameMessage, "":
			c.start(frame.SendChatMessageRequest)
		default:
			c.enqueue(stream.Error("", msgMalformed))
		}
	}
}

func (c *Client) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelTurn != nil {
		c.cancelTurn()
	}
}

func (c *Client) start(req dto.SendChatMessageRequest) {
	c.mu.Lock()
	if c.cancelTurn != nil {
		c.mu.Unlock()
		c.enqueue(stream.Error("", msgBusy))
		return
	}
	turnCtx, cancel := context.WithCancel(c.ctx)
	c.cancelTurn = cancel
	c.mu.Unlock()

	events, err := c.streamer.StreamMessage(turnCtx, c.userID, &req)
	if err != nil {
		c.finish(cancel)
		_, message := serverutils.Classify(err)
		c.enqueue(stream.Error("", message))
		return
	}

	c.turns.Add(1)
	go c.forward(turnCtx, cancel, events)
}

func (c *Client) finish(cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	c.cancelTurn = nil
	c.mu.Unlock()
}

// forward relays one turn. A turn cut short by a cancel frame still ends with
// an error event so the peer always sees a terminal event.
func (c *Client) forward(turnCtx context.Context, cancel context.CancelFunc, events <-chan stream.Event) {
	defer c.turns.Done()
	defer c.finish(cancel)

	var messageID string
	terminal := false
	for ev := range events {
		messageID = ev.MessageId
		terminal = ev.Terminal()
		if !c.enqueue(ev) {
			return
		}
	}

	if !terminal && c.ctx.Err() == nil && errors.Is(turnCtx.Err(), context.Canceled) {
		c.enqueue(stream.Error(messageID, msgCancelled))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.stop()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		}
	}
}
