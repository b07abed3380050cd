package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"docchat-be/pkg/chat"
	"docchat-be/pkg/stream"

	"go.uber.org/zap"
)

// Request is the body of a submit-message call.
type Request struct {
	Message      string      `json:"message"`
	ContextLimit int         `json:"context_limit"`
	Stream       bool        `json:"stream"`
	History      []chat.Turn `json:"history,omitempty"`
}

// EventStream yields decoded events of one reply. Next returns io.EOF when the
// server closes the stream. Close may be called concurrently with Next and must
// make a blocked Next return promptly.
type EventStream interface {
	Next() (stream.Event, error)
	Close() error
}

// Transport opens the event stream for one request. Cancelling ctx must abort it.
type Transport interface {
	Open(ctx context.Context, req Request) (EventStream, error)
}

// HTTPTransport talks to the chat server over server-sent events.
type HTTPTransport struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Logger  *zap.Logger
}

func NewHTTPTransport(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{},
		Logger:  zap.NewNop(),
	}
}

type errorEnvelope struct {
	Message string `json:"message"`
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}
	req.Header.Set("Accept", "text/event-stream, application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope errorEnvelope
	message := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
		message = envelope.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, message)
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, message)
	default:
		return nil, &TransportError{Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, message)}
	}
}

// Open posts the request with stream=true and returns the decoded event stream.
func (t *HTTPTransport) Open(ctx context.Context, req Request) (EventStream, error) {
	req.Stream = true
	resp, err := t.do(ctx, http.MethodPost, "/api/chat/message", req)
	if err != nil {
		return nil, err
	}

	log := t.Logger
	if log == nil {
		log = zap.NewNop()
	}
	dec := stream.NewDecoder(resp.Body, stream.WithMalformedHandler(func(raw []byte, err error) {
		log.Warn("skipping malformed frame", zap.ByteString("frame", raw), zap.Error(err))
	}))
	return &httpEventStream{body: resp.Body, decoder: dec}, nil
}

type statusEnvelope struct {
	Data struct {
		HasDocuments bool `json:"has_documents"`
	} `json:"data"`
}

// HasDocuments asks the document store whether chat should be enabled.
func (t *HTTPTransport) HasDocuments(ctx context.Context) (bool, error) {
	resp, err := t.do(ctx, http.MethodGet, "/api/documents/status", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var status statusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, &TransportError{Err: fmt.Errorf("decode status: %w", err)}
	}
	return status.Data.HasDocuments, nil
}

type httpEventStream struct {
	body    io.ReadCloser
	decoder *stream.Decoder

	closeOnce sync.Once
	closeErr  error
}

func (s *httpEventStream) Next() (stream.Event, error) {
	ev, err := s.decoder.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		return stream.Event{}, &TransportError{Err: err}
	}
	return ev, err
}

func (s *httpEventStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
