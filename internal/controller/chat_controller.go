package controller

import (
	"bufio"
	"context"
	"errors"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/internal/service"
	internalWS "docchat-be/internal/websocket"
	"docchat-be/pkg/stream"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/trace"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	SendMessage(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type chatController struct {
	service   service.IChatService
	hub       *internalWS.Hub
	keepAlive time.Duration
	logger    logger.ILogger
}

func NewChatController(service service.IChatService, hub *internalWS.Hub, keepAlive time.Duration, log logger.ILogger) IChatController {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &chatController{
		service:   service,
		hub:       hub,
		keepAlive: keepAlive,
		logger:    log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	h.Get("/health", c.Health)
	h.Post("/message", serverutils.JwtMiddleware, c.SendMessage)
	h.Post("/cancel/:message_id", serverutils.JwtMiddleware, c.Cancel)
}

func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.SendChatMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return serverutils.ErrBadRequest("invalid request body")
	}

	if !req.WantsStream() {
		res, err := c.service.SendMessage(ctx.UserContext(), userId, &req)
		if err != nil {
			return err
		}
		return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
	}

	// The request context is recycled once the handler returns, so the stream
	// gets its own, carrying only the trace.
	streamCtx, cancel := context.WithCancel(
		trace.ContextWithSpanContext(context.Background(), trace.SpanContextFromContext(ctx.UserContext())),
	)
	events, err := c.service.StreamMessage(streamCtx, userId, &req)
	if err != nil {
		cancel()
		return err
	}

	for k, v := range stream.Headers {
		ctx.Set(k, v)
	}
	ctx.Status(fiber.StatusOK)
	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		c.pipe(w, events)
	})
	return nil
}

// pipe writes events as they arrive and a keep-alive comment whenever the
// stream has been quiet for the keep-alive interval. A failed write means the
// client is gone; returning cancels generation.
func (c *chatController) pipe(w *bufio.Writer, events <-chan stream.Event) {
	sw := stream.NewWriter(w)
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sw.WriteEvent(ev); err != nil {
				c.logger.Debug("CHAT", "Client went away mid-stream", map[string]interface{}{"message_id": ev.MessageId, "error": err.Error()})
				return
			}
			ticker.Reset(c.keepAlive)
		case <-ticker.C:
			if err := sw.WriteKeepAlive(); err != nil {
				return
			}
		}
	}
}

func (c *chatController) Cancel(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}
	messageId := ctx.Params("message_id")

	if err := c.hub.Cancel(ctx.UserContext(), userId, messageId); err != nil {
		if errors.Is(err, internalWS.ErrFlightNotFound) {
			return serverutils.ErrNotFound(err.Error())
		}
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success cancel message", dto.CancelChatResponse{
		MessageId: messageId,
		Cancelled: true,
	}))
}

func (c *chatController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Chat service healthy", c.service.Health()))
}
