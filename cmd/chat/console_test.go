package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"docchat-be/pkg/chat"
	"docchat-be/pkg/chatclient"
	"docchat-be/pkg/stream"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

type cannedStream struct {
	events []stream.Event
}

func (s *cannedStream) Next() (stream.Event, error) {
	if len(s.events) == 0 {
		return stream.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *cannedStream) Close() error { return nil }

type cannedTransport struct{}

func (cannedTransport) Open(ctx context.Context, req chatclient.Request) (chatclient.EventStream, error) {
	items := []chat.ContextItem{{Filename: "plan.md", DocumentId: "d1", ChunkIndex: 2, ChunkText: "x", Score: 0.91}}
	return &cannedStream{events: []stream.Event{
		stream.Metadata("m1", time.Now(), items, ""),
		stream.Content("m1", "Hello"),
		stream.Content("m1", " world"),
		stream.Complete("m1", "Hello world"),
	}}, nil
}

func TestConsole_RendersReplyAndSources(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	session := chatclient.NewSession(cannedTransport{})
	err := newConsole(session, strings.NewReader("hi\n"), &out).Run(context.Background())

	assert.NoError(t, err)
	assert.Contains(t, out.String(), "ai> Hello world\n")
	assert.Contains(t, out.String(), "[plan.md #2] 0.91")
	assert.Len(t, session.Snapshot().History, 2)
}

func TestReplyRenderer_PrintsOnlyNewContent(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	r := &replyRenderer{out: &out}
	r.render(chatclient.Snapshot{Pending: &chatclient.PendingMessage{Content: "Hel"}})
	r.render(chatclient.Snapshot{Pending: &chatclient.PendingMessage{Content: "Hello"}})
	r.render(chatclient.Snapshot{})

	assert.Equal(t, "ai> Hello", out.String())
}

func TestReplyRenderer_Outcomes(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	r := &replyRenderer{out: &out}
	r.render(chatclient.Snapshot{Pending: &chatclient.PendingMessage{Content: "Hello wrld", Warning: "search down"}})
	r.finish(chatclient.TurnResult{
		Outcome: chatclient.OutcomeCommitted,
		Message: &chat.Message{Content: "Hello world"},
	})
	assert.Equal(t, "(search down)\nai> Hello wrld\nai> Hello world\n", out.String())

	out.Reset()
	(&replyRenderer{out: &out}).finish(chatclient.TurnResult{Outcome: chatclient.OutcomeAborted})
	assert.Equal(t, "(aborted)\n", out.String())

	out.Reset()
	(&replyRenderer{out: &out}).finish(chatclient.TurnResult{
		Outcome: chatclient.OutcomeErrored,
		Err:     &chatclient.GenerationError{Message: "generation failed"},
	})
	assert.Equal(t, "error: generation failed: generation failed\n", out.String())
}
