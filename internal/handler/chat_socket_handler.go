package handler

import (
	"strings"

	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/pkg/serverutils"
	internalWS "docchat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type ChatSocketHandler struct {
	hub      *internalWS.Hub
	streamer internalWS.Streamer
	logger   logger.ILogger
}

func NewChatSocketHandler(hub *internalWS.Hub, streamer internalWS.Streamer, log logger.ILogger) *ChatSocketHandler {
	return &ChatSocketHandler{
		hub:      hub,
		streamer: streamer,
		logger:   log,
	}
}

func (h *ChatSocketHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/chat/ws", h.ServeWs)
}

// ServeWs authenticates the handshake and runs the chat socket.
func (h *ChatSocketHandler) ServeWs(c *fiber.Ctx) error {
	// Browsers cannot set headers on a websocket handshake, so the query wins.
	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenStr = authHeader[7:]
		}
	}

	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
	}

	userID, err := serverutils.ParseUserToken(tokenStr)
	if err != nil {
		h.logger.Warn("ChatSocketHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.serve(conn, userID)
	})(c)
}

func (h *ChatSocketHandler) serve(conn *websocket.Conn, userID uuid.UUID) {
	h.logger.Info("ChatSocketHandler", "Starting chat socket", map[string]interface{}{"user_id": userID})
	internalWS.ServeWs(h.hub, h.streamer, conn, userID, h.logger)
	h.logger.Info("ChatSocketHandler", "Chat socket ended", map[string]interface{}{"user_id": userID})
}
