// Package stream implements the framed event stream used to deliver chat replies.
//
// Each event is written as a single "data: <json>" field followed by a blank line.
// Lines starting with ':' are comments and are used as keep-alives.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"docchat-be/pkg/chat"
)

type EventType string

const (
	EventMetadata EventType = "metadata"
	EventContent  EventType = "content"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one decoded frame. Which fields are meaningful depends on Type.
type Event struct {
	Type         EventType          `json:"type"`
	MessageId    string             `json:"message_id,omitempty"`
	Timestamp    string             `json:"timestamp,omitempty"`
	ContextUsed  []chat.ContextItem `json:"context_used,omitempty"`
	Warning      string             `json:"warning,omitempty"`
	Content      string             `json:"content,omitempty"`
	FullResponse string             `json:"full_response,omitempty"`
	Error        string             `json:"error,omitempty"`
}

func Metadata(messageId string, at time.Time, contextUsed []chat.ContextItem, warning string) Event {
	return Event{
		Type:        EventMetadata,
		MessageId:   messageId,
		Timestamp:   at.UTC().Format(time.RFC3339Nano),
		ContextUsed: contextUsed,
		Warning:     warning,
	}
}

func Content(messageId, fragment string) Event {
	return Event{Type: EventContent, MessageId: messageId, Content: fragment}
}

func Complete(messageId, fullResponse string) Event {
	return Event{Type: EventComplete, MessageId: messageId, FullResponse: fullResponse}
}

func Error(messageId, message string) Event {
	return Event{Type: EventError, MessageId: messageId, Error: message}
}

// Terminal reports whether no further events may follow e.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Time parses the metadata timestamp. A zero time is returned when absent or invalid.
func (e Event) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Validate checks the fields each event type requires.
func (e Event) Validate() error {
	switch e.Type {
	case EventMetadata:
		if e.MessageId == "" {
			return fmt.Errorf("%w: metadata without message_id", ErrInvalidEvent)
		}
	case EventContent:
		if e.Content == "" {
			return fmt.Errorf("%w: empty content fragment", ErrInvalidEvent)
		}
	case EventComplete:
		if e.MessageId == "" {
			return fmt.Errorf("%w: complete without message_id", ErrInvalidEvent)
		}
	case EventError:
		if e.Error == "" {
			return fmt.Errorf("%w: error without message", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	return nil
}

type metadataPayload struct {
	Type        EventType          `json:"type"`
	MessageId   string             `json:"message_id"`
	Timestamp   string             `json:"timestamp"`
	ContextUsed []chat.ContextItem `json:"context_used"`
	Warning     string             `json:"warning,omitempty"`
}

type contentPayload struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content"`
	MessageId string    `json:"message_id,omitempty"`
}

type completePayload struct {
	Type         EventType `json:"type"`
	MessageId    string    `json:"message_id"`
	FullResponse string    `json:"full_response"`
}

type errorPayload struct {
	Type      EventType `json:"type"`
	Error     string    `json:"error"`
	MessageId string    `json:"message_id,omitempty"`
}

// MarshalJSON emits only the fields of e's type, always including the required ones
// (an empty context list is written as [] and an empty reply as "").
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventMetadata:
		used := e.ContextUsed
		if used == nil {
			used = []chat.ContextItem{}
		}
		return json.Marshal(metadataPayload{
			Type:        e.Type,
			MessageId:   e.MessageId,
			Timestamp:   e.Timestamp,
			ContextUsed: used,
			Warning:     e.Warning,
		})
	case EventContent:
		return json.Marshal(contentPayload{Type: e.Type, Content: e.Content, MessageId: e.MessageId})
	case EventComplete:
		return json.Marshal(completePayload{Type: e.Type, MessageId: e.MessageId, FullResponse: e.FullResponse})
	case EventError:
		return json.Marshal(errorPayload{Type: e.Type, Error: e.Error, MessageId: e.MessageId})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
}
