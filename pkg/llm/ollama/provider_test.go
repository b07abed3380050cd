package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docchat-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatStream_YieldsNonEmptyFragments(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Your"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":false}`)
		fmt.Fprintln(w, `not json`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":" documents"},"done":false}`)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":" discuss X."},"done":true}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")
	s, err := p.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, llm.WithMaxTokens(64))
	require.NoError(t, err)

	var tokens []string
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"Your", " documents", " discuss X."}, tokens)
	assert.True(t, got.Stream)
	assert.Equal(t, "llama3", got.Model)
	assert.Equal(t, 64, got.Options.NumPredict)
}

func TestChatStream_TruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"partial"},"done":false}`)
	}))
	defer srv.Close()

	s, err := NewOllamaProvider(srv.URL, "m").ChatStream(context.Background(), nil)
	require.NoError(t, err)
	defer s.Close()

	tok, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "partial", tok)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestChatStream_ErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	s, err := NewOllamaProvider(srv.URL, "m").ChatStream(context.Background(), nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next()
	assert.ErrorContains(t, err, "model not found")
}

func TestChatStream_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m").ChatStream(context.Background(), nil)
	assert.ErrorContains(t, err, "status 503")
}

func TestChatStream_CancelAbortsUpstream(t *testing.T) {
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"first"},"done":false}`)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewOllamaProvider(srv.URL, "m").ChatStream(ctx, nil)
	require.NoError(t, err)
	defer s.Close()

	tok, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", tok)

	cancel()
	_, err = s.Next()
	assert.Error(t, err)

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not cancelled")
	}
}

func TestChat_Blocking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "assistant", req.Messages[0].Role)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"hello"},"done":true}`)
	}))
	defer srv.Close()

	out, err := NewOllamaProvider(srv.URL, "m").Chat(context.Background(), []llm.Message{{Role: "model", Content: "prev"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}
