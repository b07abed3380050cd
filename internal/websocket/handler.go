package websocket

import (
	"context"

	"docchat-be/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs runs a chat socket until the peer disconnects. Closing the socket
// cancels the turn in progress.
func ServeWs(hub *Hub, streamer Streamer, conn *websocket.Conn, userID uuid.UUID, log logger.ILogger) {
	ctx, stop := context.WithCancel(context.Background())
	client := &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		streamer: streamer,
		logger:   log,
		send:     make(chan []byte, 256),
		ctx:      ctx,
		stop:     stop,
	}

	hub.connected(userID)
	defer hub.disconnected(userID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		client.writePump()
	}()

	client.readPump()

	client.turns.Wait()
	close(client.send)
	<-writerDone
}
