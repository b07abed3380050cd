package dto

import (
	"strings"
	"time"

	"docchat-be/pkg/chat"
)

type ChatTurnRequest struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

type SendChatMessageRequest struct {
	Message      string            `json:"message" validate:"notblank"`
	ContextLimit *int              `json:"context_limit" validate:"omitempty,gt=0"`
	Stream       *bool             `json:"stream"`
	History      []ChatTurnRequest `json:"history" validate:"omitempty,dive"`
}

// Query is the message with surrounding whitespace removed.
func (r *SendChatMessageRequest) Query() string {
	return strings.TrimSpace(r.Message)
}

// Limit resolves context_limit against the configured default and ceiling.
func (r *SendChatMessageRequest) Limit(def, max int) int {
	if r.ContextLimit == nil {
		return def
	}
	if *r.ContextLimit > max {
		return max
	}
	return *r.ContextLimit
}

// WantsStream defaults to true when stream is omitted.
func (r *SendChatMessageRequest) WantsStream() bool {
	return r.Stream == nil || *r.Stream
}

// Turns returns at most max trailing history entries.
func (r *SendChatMessageRequest) Turns(max int) []chat.Turn {
	history := r.History
	if max >= 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	turns := make([]chat.Turn, 0, len(history))
	for _, h := range history {
		turns = append(turns, chat.Turn{Role: chat.Role(h.Role), Content: h.Content})
	}
	return turns
}

type ChatMessageResponse struct {
	MessageId string             `json:"message_id"`
	Content   string             `json:"content"`
	Timestamp time.Time          `json:"timestamp"`
	Context   []chat.ContextItem `json:"context"`
	Warning   string             `json:"warning,omitempty"`
}

type ChatHealthResponse struct {
	Status               string `json:"status"`
	Provider             string `json:"provider"`
	Model                string `json:"model"`
	GenerationConfigured bool   `json:"generation_configured"`
}

type CancelChatResponse struct {
	MessageId string `json:"message_id"`
	Cancelled bool   `json:"cancelled"`
}

// Frame types a websocket client may send.
const (
	WsFrameMessage = "message"
	WsFrameCancel  = "cancel"
)

type ChatSocketFrame struct {
	Type string `json:"type"`
	SendChatMessageRequest
}
