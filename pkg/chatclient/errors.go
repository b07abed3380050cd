package chatclient

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned for an empty or whitespace-only message.
	ErrInvalidRequest = errors.New("chatclient: invalid request")
	// ErrBusy is returned when a submission arrives while a reply is still in flight.
	ErrBusy = errors.New("chatclient: a reply is already in progress")
	// ErrNoDocuments is returned when the document gate reports an empty library.
	ErrNoDocuments = errors.New("chatclient: no documents uploaded")
	// ErrUnauthorized is returned when the server rejects the token.
	ErrUnauthorized = errors.New("chatclient: unauthorized")
)

// GenerationError is a failure reported by the server through an error event.
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Message
}

// TransportError covers network failures, truncated streams and protocol violations.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
