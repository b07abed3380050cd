package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"docchat-be/internal/config"
	"docchat-be/internal/dto"
	"docchat-be/internal/metrics"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/pkg/chat"
	"docchat-be/pkg/events"
	"docchat-be/pkg/llm"
	"docchat-be/pkg/rag/prompt"
	"docchat-be/pkg/stream"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var chatTracer = otel.Tracer("docchat-be/chat")

var errNoProvider = errors.New("no generation provider configured")

const (
	RetrievalWarning = "document search unavailable; answer is not grounded in your documents"

	msgGenerationFailed    = "generation failed"
	msgGenerationCancelled = "generation cancelled"
)

// Retriever is the retrieval gateway as seen by the chat service.
type Retriever interface {
	Search(ctx context.Context, userId uuid.UUID, query string, limit int) ([]chat.ContextItem, error)
}

// FlightRegistry lets a running generation be cancelled by message id from
// outside the request that started it.
type FlightRegistry interface {
	Register(userId uuid.UUID, messageId string, cancel context.CancelFunc) (release func())
}

type ChatSettings struct {
	DefaultContextLimit    int
	MaxContextLimit        int
	MaxHistory             int
	RetrievalTimeout       time.Duration
	RetrievalFailurePolicy string
	Provider               string
	Model                  string
	Temperature            float64
	MaxTokens              int
}

func ChatSettingsFromConfig(cfg *config.Config) ChatSettings {
	return ChatSettings{
		DefaultContextLimit:    cfg.Chat.DefaultContextLimit,
		MaxContextLimit:        cfg.Chat.MaxContextLimit,
		MaxHistory:             cfg.Chat.MaxHistory,
		RetrievalTimeout:       cfg.Chat.RetrievalTimeout,
		RetrievalFailurePolicy: cfg.Chat.RetrievalFailurePolicy,
		Provider:               cfg.Ai.LLMProvider,
		Model:                  cfg.Ai.LLMModel,
		Temperature:            cfg.Ai.Temperature,
		MaxTokens:              cfg.Ai.MaxTokens,
	}
}

type IChatService interface {
	// StreamMessage validates req and returns the turn's events. The channel is
	// closed after the terminal event, or early when ctx ends.
	StreamMessage(ctx context.Context, userId uuid.UUID, req *dto.SendChatMessageRequest) (<-chan stream.Event, error)
	SendMessage(ctx context.Context, userId uuid.UUID, req *dto.SendChatMessageRequest) (*dto.ChatMessageResponse, error)
	Health() *dto.ChatHealthResponse
}

type chatService struct {
	retriever   Retriever
	llmProvider llm.LLMProvider
	publisher   IPublisherService
	flights     FlightRegistry
	metrics     *metrics.ChatMetrics
	settings    ChatSettings
	logger      logger.ILogger
}

// NewChatService builds the chat service. publisher, flights and chatMetrics may be nil.
func NewChatService(
	retriever Retriever,
	llmProvider llm.LLMProvider,
	publisher IPublisherService,
	flights FlightRegistry,
	chatMetrics *metrics.ChatMetrics,
	settings ChatSettings,
	log logger.ILogger,
) IChatService {
	if settings.DefaultContextLimit <= 0 {
		settings.DefaultContextLimit = 5
	}
	if settings.MaxContextLimit < settings.DefaultContextLimit {
		settings.MaxContextLimit = settings.DefaultContextLimit
	}
	if settings.RetrievalTimeout <= 0 {
		settings.RetrievalTimeout = 5 * time.Second
	}
	return &chatService{
		retriever:   retriever,
		llmProvider: llmProvider,
		publisher:   publisher,
		flights:     flights,
		metrics:     chatMetrics,
		settings:    settings,
		logger:      log,
	}
}

// turn is a validated request.
type turn struct {
	userId    uuid.UUID
	messageId string
	query     string
	limit     int
	history   []chat.Turn
	started   time.Time
}

func (cs *chatService) prepare(userId uuid.UUID, req *dto.SendChatMessageRequest) (*turn, error) {
	if req == nil {
		return nil, serverutils.ErrBadRequest("request body is required")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return nil, err
	}
	if cs.llmProvider == nil {
		return nil, serverutils.ErrBadGateway(msgGenerationFailed, errNoProvider)
	}
	return &turn{
		userId:    userId,
		messageId: uuid.NewString(),
		query:     req.Query(),
		limit:     req.Limit(cs.settings.DefaultContextLimit, cs.settings.MaxContextLimit),
		history:   req.Turns(cs.settings.MaxHistory),
		started:   time.Now(),
	}, nil
}

func (cs *chatService) options() []llm.Option {
	opts := []llm.Option{llm.WithTemperature(cs.settings.Temperature)}
	if cs.settings.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(cs.settings.MaxTokens))
	}
	return opts
}

// retrieve never fails the turn. On error or timeout it returns an empty context
// and, under the warn policy, the warning to attach.
func (cs *chatService) retrieve(ctx context.Context, t *turn) ([]chat.ContextItem, string) {
	rctx, cancel := context.WithTimeout(ctx, cs.settings.RetrievalTimeout)
	defer cancel()

	type result struct {
		items []chat.ContextItem
		err   error
	}
	done := make(chan result, 1)
	started := time.Now()
	go func() {
		items, err := cs.retriever.Search(rctx, t.userId, t.query, t.limit)
		done <- result{items, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-rctx.Done():
		res.err = rctx.Err()
	}
	cs.metrics.RetrievalObserved(time.Since(started))

	if res.err == nil {
		items := res.items
		if len(items) > t.limit {
			items = items[:t.limit]
		}
		if items == nil {
			items = []chat.ContextItem{}
		}
		return items, ""
	}

	if ctx.Err() != nil {
		return []chat.ContextItem{}, ""
	}

	reason := metrics.ReasonError
	if errors.Is(res.err, context.DeadlineExceeded) {
		reason = metrics.ReasonTimeout
	}
	cs.metrics.RetrievalDegraded(reason)
	cs.logger.Warn("CHAT", "Retrieval failed, answering without documents", map[string]interface{}{
		"user_id":    t.userId.String(),
		"message_id": t.messageId,
		"reason":     reason,
		"error":      res.err.Error(),
	})

	if cs.settings.RetrievalFailurePolicy == config.RetrievalPolicyWarn {
		return []chat.ContextItem{}, RetrievalWarning
	}
	return []chat.ContextItem{}, ""
}

func (cs *chatService) StreamMessage(ctx context.Context, userId uuid.UUID, req *dto.SendChatMessageRequest) (<-chan stream.Event, error) {
	t, err := cs.prepare(userId, req)
	if err != nil {
		return nil, err
	}

	out := make(chan stream.Event)
	go cs.runStream(ctx, t, out)
	return out, nil
}

// runStream sends metadata, content fragments and exactly one terminal event.
// Events are delivered while ctx lives; genCtx additionally ends when the
// flight is cancelled by message id, which still yields a terminal error event.
func (cs *chatService) runStream(ctx context.Context, t *turn, out chan<- stream.Event) {
	defer close(out)
	defer cs.metrics.StreamStarted()()

	ctx, span := chatTracer.Start(ctx, "chat.stream")
	defer span.End()
	span.SetAttributes(attribute.String("chat.message_id", t.messageId), attribute.Int("chat.context_limit", t.limit))

	genCtx, cancelGen := context.WithCancel(ctx)
	defer cancelGen()
	if cs.flights != nil {
		release := cs.flights.Register(t.userId, t.messageId, cancelGen)
		defer release()
	}

	emit := func(ev stream.Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	finish := func(outcome string, fragments int) {
		cs.metrics.TurnFinished("stream", outcome)
		cs.publishTurn(t, "stream", outcome, fragments)
	}
	fail := func(message string, fragments int, cause error) {
		if ctx.Err() != nil {
			finish(metrics.OutcomeCancelled, fragments)
			return
		}
		outcome := metrics.OutcomeErrored
		if genCtx.Err() != nil {
			message, outcome = msgGenerationCancelled, metrics.OutcomeCancelled
		} else {
			span.RecordError(cause)
			span.SetStatus(codes.Error, message)
			cs.logger.Error("CHAT", "Generation failed", map[string]interface{}{
				"user_id":    t.userId.String(),
				"message_id": t.messageId,
				"fragments":  fragments,
				"error":      cause.Error(),
			})
		}
		emit(stream.Error(t.messageId, message))
		finish(outcome, fragments)
	}

	items, warning := cs.retrieve(genCtx, t)
	span.SetAttributes(attribute.Int("chat.context_items", len(items)))
	if !emit(stream.Metadata(t.messageId, time.Now(), items, warning)) {
		finish(metrics.OutcomeCancelled, 0)
		return
	}
	if genCtx.Err() != nil {
		fail(msgGenerationCancelled, 0, genCtx.Err())
		return
	}

	messages := prompt.NewDocumentBuilder(items, t.history, t.query).Messages()
	tokens, err := cs.llmProvider.ChatStream(genCtx, messages, cs.options()...)
	if err != nil {
		fail(msgGenerationFailed, 0, err)
		return
	}
	defer tokens.Close()

	var full strings.Builder
	fragments := 0
	for {
		tok, err := tokens.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fail(msgGenerationFailed, fragments, err)
			return
		}
		if tok == "" {
			continue
		}
		if fragments == 0 {
			cs.metrics.FirstToken(time.Since(t.started))
		}
		full.WriteString(tok)
		fragments++
		if !emit(stream.Content(t.messageId, tok)) {
			finish(metrics.OutcomeCancelled, fragments)
			return
		}
		cs.metrics.FragmentSent()
	}

	if !emit(stream.Complete(t.messageId, full.String())) {
		finish(metrics.OutcomeCancelled, fragments)
		return
	}
	finish(metrics.OutcomeCompleted, fragments)
}

func (cs *chatService) SendMessage(ctx context.Context, userId uuid.UUID, req *dto.SendChatMessageRequest) (*dto.ChatMessageResponse, error) {
	t, err := cs.prepare(userId, req)
	if err != nil {
		return nil, err
	}

	ctx, span := chatTracer.Start(ctx, "chat.message")
	defer span.End()

	items, warning := cs.retrieve(ctx, t)
	messages := prompt.NewDocumentBuilder(items, t.history, t.query).Messages()

	reply, err := cs.llmProvider.Chat(ctx, messages, cs.options()...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, msgGenerationFailed)
		cs.metrics.TurnFinished("blocking", metrics.OutcomeErrored)
		cs.publishTurn(t, "blocking", metrics.OutcomeErrored, 0)
		cs.logger.Error("CHAT", "Generation failed", map[string]interface{}{
			"user_id":    userId.String(),
			"message_id": t.messageId,
			"error":      err.Error(),
		})
		return nil, serverutils.ErrBadGateway(msgGenerationFailed, err)
	}

	cs.metrics.TurnFinished("blocking", metrics.OutcomeCompleted)
	cs.publishTurn(t, "blocking", metrics.OutcomeCompleted, 0)

	return &dto.ChatMessageResponse{
		MessageId: t.messageId,
		Content:   reply,
		Timestamp: time.Now().UTC(),
		Context:   items,
		Warning:   warning,
	}, nil
}

func (cs *chatService) Health() *dto.ChatHealthResponse {
	status := "ok"
	if cs.llmProvider == nil {
		status = "degraded"
	}
	return &dto.ChatHealthResponse{
		Status:               status,
		Provider:             cs.settings.Provider,
		Model:                cs.settings.Model,
		GenerationConfigured: cs.llmProvider != nil,
	}
}

func (cs *chatService) publishTurn(t *turn, mode, outcome string, fragments int) {
	if cs.publisher == nil {
		return
	}
	evt := events.New(events.ChatTurnCompleted, map[string]interface{}{
		"user_id":     t.userId.String(),
		"message_id":  t.messageId,
		"mode":        mode,
		"outcome":     outcome,
		"fragments":   fragments,
		"duration_ms": time.Since(t.started).Milliseconds(),
	})
	// Auxiliary: a lost event must not affect the reply.
	if err := cs.publisher.Publish(context.Background(), evt); err != nil {
		cs.logger.Warn("CHAT", "Failed to publish chat turn event", map[string]interface{}{"error": err.Error()})
	}
}
