// Package chatclient drives one chat conversation against the server: it
// enforces a single in-flight reply, renders the reply incrementally and only
// commits it to history once the server confirms completion.
package chatclient

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"docchat-be/pkg/chat"
	"docchat-be/pkg/stream"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

type Outcome int

const (
	OutcomeCommitted Outcome = iota
	OutcomeErrored
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeErrored:
		return "errored"
	default:
		return "aborted"
	}
}

// PendingMessage is the assistant reply being streamed. It is never part of history.
type PendingMessage struct {
	MessageId string
	Content   string
	Context   []chat.ContextItem
	Warning   string
	Timestamp time.Time
}

// Snapshot is a read-only copy of the session for rendering.
type Snapshot struct {
	State   State
	History []chat.Message
	Pending *PendingMessage
	// Err is the failure of the most recent turn, cleared by the next submission.
	Err error
}

// TurnResult describes how a submission ended. Message is set only when committed.
type TurnResult struct {
	Outcome     Outcome
	UserMessage chat.Message
	Message     *chat.Message
	Err         error
}

// Turn is the handle of one accepted submission.
type Turn struct {
	done   chan struct{}
	result TurnResult
}

// Done is closed once the turn has settled.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn settles or ctx ends.
func (t *Turn) Wait(ctx context.Context) (TurnResult, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return TurnResult{}, ctx.Err()
	}
}

type Option func(*Session)

func WithContextLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.contextLimit = n
		}
	}
}

// WithMaxHistory bounds how many committed messages accompany each request.
func WithMaxHistory(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.maxHistory = n
		}
	}
}

// WithDocumentGate makes Submit fail with ErrNoDocuments while gate reports false.
func WithDocumentGate(gate func(ctx context.Context) (bool, error)) Option {
	return func(s *Session) {
		s.gate = gate
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// Session holds one conversation. All exported methods are safe for concurrent use;
// the pending buffer is written only by the consumer goroutine of the active turn.
type Session struct {
	transport    Transport
	contextLimit int
	maxHistory   int
	gate         func(ctx context.Context) (bool, error)
	logger       *zap.Logger

	mu      sync.Mutex
	state   State
	history []chat.Message
	pending *PendingMessage
	lastErr error
	flight  *flight

	updates chan struct{}
}

func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport:    transport,
		contextLimit: 5,
		maxHistory:   10,
		logger:       zap.NewNop(),
		updates:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Updates signals that Snapshot has changed. Signals coalesce; a slow reader
// sees at least one signal after the latest change.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:   s.state,
		History: make([]chat.Message, len(s.history)),
		Err:     s.lastErr,
	}
	for i, m := range s.history {
		snap.History[i] = m.Clone()
	}
	if s.pending != nil {
		p := *s.pending
		p.Context = chat.CloneContext(p.Context)
		snap.Pending = &p
	}
	return snap
}

// Busy reports whether a reply is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flight != nil
}

// Submit validates text and dispatches it. The returned Turn settles when the reply
// is committed, fails or is aborted. Cancelling ctx aborts the turn.
func (s *Session) Submit(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidRequest
	}
	if s.Busy() {
		return nil, ErrBusy
	}

	if s.gate != nil {
		ok, err := s.gate(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNoDocuments
		}
	}

	s.mu.Lock()
	if s.flight != nil {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	userMessage := chat.Message{
		Id:        uuid.NewString(),
		Content:   text,
		Role:      chat.RoleUser,
		Timestamp: time.Now().UTC(),
	}
	req := Request{
		Message:      text,
		ContextLimit: s.contextLimit,
		Stream:       true,
		History:      s.recentTurns(),
	}
	s.history = append(s.history, userMessage)

	flightCtx, cancel := context.WithCancel(ctx)
	f := &flight{
		ctx:    flightCtx,
		cancel: cancel,
		turn:   &Turn{done: make(chan struct{})},
		user:   userMessage,
		events: make(chan item),
		done:   make(chan struct{}),
	}
	s.flight = f
	s.state = StateSending
	s.pending = nil
	s.lastErr = nil
	s.mu.Unlock()

	s.notify()
	go s.run(f, req)
	return f.turn, nil
}

// Abort cancels the in-flight turn, releases its connection and returns once the
// session is idle again. It is a no-op when nothing is in flight.
func (s *Session) Abort() {
	s.mu.Lock()
	f := s.flight
	if f != nil {
		f.cancel()
	}
	s.mu.Unlock()

	if f == nil {
		return
	}
	f.closeStream()
	<-f.done
}

// recentTurns must be called with mu held.
func (s *Session) recentTurns() []chat.Turn {
	start := len(s.history) - s.maxHistory
	if start < 0 {
		start = 0
	}
	turns := make([]chat.Turn, 0, len(s.history)-start)
	for _, m := range s.history[start:] {
		turns = append(turns, chat.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

type item struct {
	ev  stream.Event
	err error
}

// flight is the state of one dispatched request.
type flight struct {
	ctx    context.Context
	cancel context.CancelFunc
	turn   *Turn
	user   chat.Message
	events chan item
	done   chan struct{}

	streamMu sync.Mutex
	es       EventStream
	closed   bool
	pumpDone chan struct{}
}

// attach records the opened stream, or closes it at once if the turn was already aborted.
func (f *flight) attach(es EventStream) bool {
	f.streamMu.Lock()
	defer f.streamMu.Unlock()
	if f.closed {
		es.Close()
		return false
	}
	f.es = es
	return true
}

func (f *flight) closeStream() {
	f.streamMu.Lock()
	defer f.streamMu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if f.es != nil {
		f.es.Close()
	}
}

func (s *Session) run(f *flight, req Request) {
	es, err := s.transport.Open(f.ctx, req)
	if err != nil {
		s.settleFailure(f, err)
		return
	}
	if !f.attach(es) {
		s.settleFailure(f, context.Canceled)
		return
	}

	f.pumpDone = make(chan struct{})
	go f.pump(es)

	acc := stream.NewAccumulator()
	for {
		select {
		case <-f.ctx.Done():
			s.settle(f, OutcomeAborted, nil, nil)
			return
		case it := <-f.events:
			if it.err != nil {
				if errors.Is(it.err, io.EOF) {
					it.err = &TransportError{Err: io.ErrUnexpectedEOF}
				}
				s.settleFailure(f, it.err)
				return
			}
			if s.apply(f, acc, it.ev) {
				return
			}
		}
	}
}

// pump moves events from the transport onto the flight's channel in arrival order.
func (f *flight) pump(es EventStream) {
	defer close(f.pumpDone)
	for {
		ev, err := es.Next()
		select {
		case f.events <- item{ev: ev, err: err}:
		case <-f.ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// apply performs one transition and reports whether the turn has settled.
func (s *Session) apply(f *flight, acc *stream.Accumulator, ev stream.Event) bool {
	applyErr := acc.Apply(ev)
	if applyErr != nil && !errors.Is(applyErr, stream.ErrConcatenationMismatch) {
		s.settleFailure(f, &TransportError{Err: applyErr})
		return true
	}

	switch ev.Type {
	case stream.EventMetadata:
		at := ev.Time()
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if !s.update(f, func() {
			s.state = StateStreaming
			s.pending = &PendingMessage{
				MessageId: ev.MessageId,
				Context:   acc.Context(),
				Warning:   ev.Warning,
				Timestamp: at,
			}
		}) {
			s.settle(f, OutcomeAborted, nil, nil)
			return true
		}
		return false

	case stream.EventContent:
		content := acc.Content()
		if !s.update(f, func() { s.pending.Content = content }) {
			s.settle(f, OutcomeAborted, nil, nil)
			return true
		}
		return false

	case stream.EventComplete:
		if applyErr != nil {
			s.logger.Warn("streamed content differs from full_response; using full_response",
				zap.String("message_id", ev.MessageId), zap.Error(applyErr))
		}
		at := stream.Event{Timestamp: acc.Timestamp()}.Time()
		if at.IsZero() {
			at = time.Now().UTC()
		}
		msg := chat.Message{
			Id:        acc.MessageId(),
			Content:   acc.FullResponse(),
			Role:      chat.RoleAssistant,
			Timestamp: at,
			Context:   acc.Context(),
		}
		s.settle(f, OutcomeCommitted, &msg, nil)
		return true

	case stream.EventError:
		s.settleFailure(f, &GenerationError{Message: ev.Error})
		return true
	}
	return false
}

// update runs fn under the lock unless the turn was aborted, then signals a repaint.
func (s *Session) update(f *flight, fn func()) bool {
	s.mu.Lock()
	if s.flight != f || f.ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	fn()
	s.mu.Unlock()
	s.notify()
	return true
}

func (s *Session) settleFailure(f *flight, err error) {
	if f.ctx.Err() != nil {
		s.settle(f, OutcomeAborted, nil, nil)
		return
	}
	s.settle(f, OutcomeErrored, nil, err)
}

// settle ends the turn. A commit that races with Abort loses: once the flight is
// cancelled nothing is appended.
func (s *Session) settle(f *flight, outcome Outcome, msg *chat.Message, err error) {
	s.mu.Lock()
	if s.flight == f {
		if outcome == OutcomeCommitted && f.ctx.Err() != nil {
			outcome, msg = OutcomeAborted, nil
		}
		if outcome == OutcomeCommitted {
			s.history = append(s.history, *msg)
		}
		s.flight = nil
		s.pending = nil
		s.state = StateIdle
		s.lastErr = err
	}
	s.mu.Unlock()

	f.cancel()
	f.closeStream()
	if f.pumpDone != nil {
		<-f.pumpDone
	}

	result := TurnResult{Outcome: outcome, UserMessage: f.user, Err: err}
	if msg != nil {
		m := msg.Clone()
		result.Message = &m
	}
	f.turn.result = result
	close(f.turn.done)
	close(f.done)
	s.notify()
}
