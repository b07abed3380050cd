package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/pkg/serverutils"
	internalWS "docchat-be/internal/websocket"
	"docchat-be/pkg/chat"
	"docchat-be/pkg/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatService struct {
	events    []stream.Event
	streamErr error
	reply     *dto.ChatMessageResponse
	replyErr  error
	gotUser   uuid.UUID
	gotReq    *dto.SendChatMessageRequest
}

func (f *fakeChatService) StreamMessage(ctx context.Context, userId uuid.UUID, req *dto.SendChatMessageRequest) (<-chan stream.Event, error) {
	f.gotUser, f.gotReq = userId, req
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	out := make(chan stream.Event, len(f.events))
	for _, ev := range f.events {
		out <- ev
	}
	close(out)
	return out, nil
}

func (f *fakeChatService) SendMessage(ctx context.Context, userId uuid.UUID, req *dto.SendChatMessageRequest) (*dto.ChatMessageResponse, error) {
	f.gotUser, f.gotReq = userId, req
	return f.reply, f.replyErr
}

func (f *fakeChatService) Health() *dto.ChatHealthResponse {
	return &dto.ChatHealthResponse{Status: "healthy", Provider: "ollama", Model: "llama3", GenerationConfigured: true}
}

// slowChatService stalls after the metadata event so the stream goes quiet.
type slowChatService struct {
	fakeChatService
	stall time.Duration
}

func (s *slowChatService) StreamMessage(ctx context.Context, userId uuid.UUID, req *dto.SendChatMessageRequest) (<-chan stream.Event, error) {
	out := make(chan stream.Event)
	go func() {
		defer close(out)
		for i, ev := range s.events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if i == 0 {
				time.Sleep(s.stall)
			}
		}
	}()
	return out, nil
}

func newTestApp(register func(r fiber.Router)) *fiber.App {
	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	register(app.Group("/api"))
	return app
}

func authorized(t *testing.T, req *http.Request) uuid.UUID {
	t.Helper()
	t.Setenv("JWT_SECRET", "controller-secret")
	userId := uuid.New()
	token, err := serverutils.GenerateToken(userId, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return userId
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeEnvelope(t *testing.T, resp *http.Response) serverutils.BaseResponse {
	t.Helper()
	var out serverutils.BaseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func newChatApp(svc *fakeChatService) (*fiber.App, *internalWS.Hub) {
	hub := internalWS.NewHub(nil, logger.NewNopLogger())
	ctrl := NewChatController(svc, hub, time.Minute, logger.NewNopLogger())
	return newTestApp(ctrl.RegisterRoutes), hub
}

func TestChatController_StreamsEvents(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeChatService{events: []stream.Event{
		stream.Metadata("m1", at, []chat.ContextItem{{Filename: "notes.md", DocumentId: "d1", ChunkText: "x", Score: 0.9}}, ""),
		stream.Content("m1", "Hello"),
		stream.Content("m1", " there"),
		stream.Complete("m1", "Hello there"),
	}}
	app, _ := newChatApp(svc)

	req := jsonRequest(http.MethodPost, "/api/chat/message", `{"message":"  hi  ","context_limit":3}`)
	userId := authorized(t, req)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	dec := stream.NewDecoder(resp.Body)
	var got []stream.Event
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, ev)
	}

	require.Len(t, got, 4)
	assert.Equal(t, stream.EventMetadata, got[0].Type)
	assert.Equal(t, "d1", got[0].ContextUsed[0].DocumentId)
	assert.Equal(t, "Hello", got[1].Content)
	assert.Equal(t, " there", got[2].Content)
	assert.Equal(t, "Hello there", got[3].FullResponse)

	assert.Equal(t, userId, svc.gotUser)
	require.NotNil(t, svc.gotReq.ContextLimit)
	assert.Equal(t, 3, *svc.gotReq.ContextLimit)
}

func TestChatController_KeepAliveDuringQuietStream(t *testing.T) {
	svc := &slowChatService{
		fakeChatService: fakeChatService{events: []stream.Event{
			stream.Metadata("m1", time.Now(), []chat.ContextItem{}, ""),
			stream.Content("m1", "late"),
			stream.Complete("m1", "late"),
		}},
		stall: 150 * time.Millisecond,
	}
	hub := internalWS.NewHub(nil, logger.NewNopLogger())
	app := newTestApp(NewChatController(svc, hub, 20*time.Millisecond, logger.NewNopLogger()).RegisterRoutes)

	req := jsonRequest(http.MethodPost, "/api/chat/message", `{"message":"hi"}`)
	authorized(t, req)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	raw := string(body)
	metadataAt := strings.Index(raw, `"type":"metadata"`)
	contentAt := strings.Index(raw, `"type":"content"`)
	require.NotEqual(t, -1, metadataAt)
	require.Greater(t, contentAt, metadataAt)
	assert.Contains(t, raw[metadataAt:contentAt], ": keep-alive\n\n")

	dec := stream.NewDecoder(bytes.NewReader(body))
	var types []stream.EventType
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []stream.EventType{stream.EventMetadata, stream.EventContent, stream.EventComplete}, types)
}

func TestChatController_NonStreamingReply(t *testing.T) {
	svc := &fakeChatService{reply: &dto.ChatMessageResponse{
		MessageId: "m2",
		Content:   "All done",
		Context:   []chat.ContextItem{},
	}}
	app, _ := newChatApp(svc)

	req := jsonRequest(http.MethodPost, "/api/chat/message", `{"message":"hi","stream":false}`)
	authorized(t, req)

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeEnvelope(t, resp)
	assert.True(t, out.Success)
	data, ok := out.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "m2", data["message_id"])
	assert.Equal(t, "All done", data["content"])
}

func TestChatController_Errors(t *testing.T) {
	tests := []struct {
		name    string
		svc     *fakeChatService
		body    string
		auth    bool
		code    int
		message string
	}{
		{name: "no token", svc: &fakeChatService{}, body: `{"message":"hi"}`, code: 401},
		{name: "bad json", svc: &fakeChatService{}, body: `{"message":`, auth: true, code: 400, message: "invalid request body"},
		{
			name: "validation",
			svc:  &fakeChatService{streamErr: serverutils.ErrBadRequest("Message is required")},
			body: `{"message":"   "}`, auth: true, code: 400, message: "Message is required",
		},
		{
			name: "generation failure",
			svc:  &fakeChatService{replyErr: serverutils.ErrBadGateway("generation failed", io.ErrUnexpectedEOF)},
			body: `{"message":"hi","stream":false}`, auth: true, code: 502, message: "generation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newChatApp(tt.svc)
			req := jsonRequest(http.MethodPost, "/api/chat/message", tt.body)
			if tt.auth {
				authorized(t, req)
			}

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)

			out := decodeEnvelope(t, resp)
			assert.False(t, out.Success)
			if tt.message != "" {
				assert.Equal(t, tt.message, out.Message)
			}
		})
	}
}

func TestChatController_HealthIsPublic(t *testing.T) {
	app, _ := newChatApp(&fakeChatService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/chat/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeEnvelope(t, resp)
	data := out.Data.(map[string]interface{})
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "ollama", data["provider"])
}

func TestChatController_Cancel(t *testing.T) {
	app, hub := newChatApp(&fakeChatService{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat/cancel/missing", nil)
	userId := authorized(t, req)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	release := hub.Register(userId, "m3", cancel)
	defer release()

	req = httptest.NewRequest(http.MethodPost, "/api/chat/cancel/m3", nil)
	req.Header.Set("Authorization", "Bearer "+mustToken(t, userId))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	out := decodeEnvelope(t, resp)
	data := out.Data.(map[string]interface{})
	assert.Equal(t, "m3", data["message_id"])
	assert.Equal(t, true, data["cancelled"])
}

func TestChatController_CancelChecksOwner(t *testing.T) {
	app, hub := newChatApp(&fakeChatService{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	release := hub.Register(uuid.New(), "m4", cancel)
	defer release()

	req := httptest.NewRequest(http.MethodPost, "/api/chat/cancel/m4", nil)
	authorized(t, req)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NoError(t, ctx.Err())
}

func mustToken(t *testing.T, userId uuid.UUID) string {
	t.Helper()
	token, err := serverutils.GenerateToken(userId, time.Hour)
	require.NoError(t, err)
	return token
}
