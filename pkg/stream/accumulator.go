package stream

import (
	"fmt"
	"strings"

	"docchat-be/pkg/chat"
)

// Accumulator applies events of a single stream in arrival order and enforces
// the framing rules: metadata first and once, no empty fragments, nothing after
// a terminal event, and full_response equal to the concatenated fragments.
type Accumulator struct {
	messageId string
	timestamp string
	context   []chat.ContextItem
	warning   string
	content   strings.Builder
	fragments int

	started  bool
	finished bool
	full     string
	failure  string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Apply folds ev into the accumulated state. On ErrConcatenationMismatch the
// stream is still marked finished and FullResponse holds the server's text.
func (a *Accumulator) Apply(ev Event) error {
	if a.finished {
		return fmt.Errorf("%w: got %s", ErrStreamTerminated, ev.Type)
	}

	switch ev.Type {
	case EventMetadata:
		if a.started {
			return fmt.Errorf("%w: duplicate metadata", ErrOutOfOrder)
		}
		a.started = true
		a.messageId = ev.MessageId
		a.timestamp = ev.Timestamp
		a.context = chat.CloneContext(ev.ContextUsed)
		a.warning = ev.Warning

	case EventContent:
		if !a.started {
			return fmt.Errorf("%w: content before metadata", ErrOutOfOrder)
		}
		if ev.Content == "" {
			return fmt.Errorf("%w: empty content fragment", ErrInvalidEvent)
		}
		a.content.WriteString(ev.Content)
		a.fragments++

	case EventComplete:
		if !a.started {
			return fmt.Errorf("%w: complete before metadata", ErrOutOfOrder)
		}
		a.finished = true
		a.full = ev.FullResponse
		if a.full != a.content.String() {
			return fmt.Errorf("%w: streamed %d bytes, full_response %d bytes",
				ErrConcatenationMismatch, a.content.Len(), len(a.full))
		}

	case EventError:
		a.finished = true
		a.failure = ev.Error

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
	return nil
}

func (a *Accumulator) MessageId() string { return a.messageId }

func (a *Accumulator) Timestamp() string { return a.timestamp }

func (a *Accumulator) Context() []chat.ContextItem { return chat.CloneContext(a.context) }

func (a *Accumulator) Warning() string { return a.warning }

// Content is the concatenation of the fragments received so far.
func (a *Accumulator) Content() string { return a.content.String() }

func (a *Accumulator) Fragments() int { return a.fragments }

func (a *Accumulator) Started() bool { return a.started }

// Finished reports whether a complete or error event was applied.
func (a *Accumulator) Finished() bool { return a.finished }

// FullResponse is the authoritative text carried by the complete event.
func (a *Accumulator) FullResponse() string { return a.full }

// Failure is the message of the error event, if one ended the stream.
func (a *Accumulator) Failure() string { return a.failure }
