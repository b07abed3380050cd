package stream

import "errors"

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrInvalidEvent     = errors.New("invalid event")

	// ErrOutOfOrder is returned when an event arrives in a position the protocol forbids,
	// e.g. content before metadata or a second metadata frame.
	ErrOutOfOrder = errors.New("event out of order")

	// ErrStreamTerminated is returned for events received after complete or error.
	ErrStreamTerminated = errors.New("stream already terminated")

	// ErrConcatenationMismatch means complete.full_response differs from the
	// concatenated content fragments.
	ErrConcatenationMismatch = errors.New("full response does not match streamed content")
)
