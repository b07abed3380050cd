package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"docchat-be/internal/dto"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/pkg/chat"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocumentService struct {
	docs      []dto.DocumentResponse
	listReq   *dto.ListDocumentsRequest
	searchReq *dto.SearchDocumentsRequest
	deleted   []uuid.UUID
	deleteErr error
	userId    uuid.UUID
}

func (f *fakeDocumentService) List(ctx context.Context, userId uuid.UUID, req *dto.ListDocumentsRequest) ([]dto.DocumentResponse, error) {
	f.userId, f.listReq = userId, req
	return f.docs, nil
}

func (f *fakeDocumentService) Search(ctx context.Context, userId uuid.UUID, req *dto.SearchDocumentsRequest) (*dto.SearchDocumentsResponse, error) {
	f.userId, f.searchReq = userId, req
	if err := serverutils.ValidateRequest(req); err != nil {
		return nil, err
	}
	return &dto.SearchDocumentsResponse{
		Query:   req.Query,
		Results: []chat.ContextItem{{Filename: "a.pdf", DocumentId: "d1", ChunkText: "chunk", Score: 0.8}},
	}, nil
}

func (f *fakeDocumentService) Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error {
	f.userId = userId
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeDocumentService) Stats(ctx context.Context, userId uuid.UUID) (*dto.DocumentStatsResponse, error) {
	return &dto.DocumentStatsResponse{TotalDocuments: 2, TotalChunks: 9, TotalWords: 1200, RecentDocuments: f.docs}, nil
}

func (f *fakeDocumentService) Status(ctx context.Context, userId uuid.UUID) (*dto.DocumentStatusResponse, error) {
	return &dto.DocumentStatusResponse{HasDocuments: len(f.docs) > 0, DocumentCount: int64(len(f.docs))}, nil
}

func TestDocumentController_RequiresToken(t *testing.T) {
	app := newTestApp(NewDocumentController(&fakeDocumentService{}).RegisterRoutes)

	for _, path := range []string{"/api/documents", "/api/documents/stats", "/api/documents/status"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestDocumentController_List(t *testing.T) {
	svc := &fakeDocumentService{docs: []dto.DocumentResponse{{Id: uuid.New(), Filename: "a.pdf"}}}
	app := newTestApp(NewDocumentController(svc).RegisterRoutes)

	req := httptest.NewRequest(http.MethodGet, "/api/documents?limit=7", nil)
	userId := authorized(t, req)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeEnvelope(t, resp)
	items := out.Data.([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "a.pdf", items[0].(map[string]interface{})["filename"])
	assert.Equal(t, 7, svc.listReq.Limit)
	assert.Equal(t, userId, svc.userId)
}

func TestDocumentController_Search(t *testing.T) {
	svc := &fakeDocumentService{}
	app := newTestApp(NewDocumentController(svc).RegisterRoutes)

	req := jsonRequest(http.MethodPost, "/api/documents/search", `{"query":"budget","limit":3}`)
	authorized(t, req)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeEnvelope(t, resp)
	data := out.Data.(map[string]interface{})
	assert.Equal(t, "budget", data["query"])
	assert.Len(t, data["results"], 1)
	assert.Equal(t, 3, svc.searchReq.Limit)

	req = jsonRequest(http.MethodPost, "/api/documents/search", `{"query":"  "}`)
	authorized(t, req)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDocumentController_Delete(t *testing.T) {
	svc := &fakeDocumentService{}
	app := newTestApp(NewDocumentController(svc).RegisterRoutes)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/documents/"+id.String(), nil)
	authorized(t, req)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []uuid.UUID{id}, svc.deleted)

	req = httptest.NewRequest(http.MethodDelete, "/api/documents/not-a-uuid", nil)
	authorized(t, req)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	svc.deleteErr = serverutils.ErrNotFound("document not found")
	req = httptest.NewRequest(http.MethodDelete, "/api/documents/"+uuid.NewString(), nil)
	authorized(t, req)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "document not found", decodeEnvelope(t, resp).Message)
}

func TestDocumentController_StatsAndStatus(t *testing.T) {
	svc := &fakeDocumentService{}
	app := newTestApp(NewDocumentController(svc).RegisterRoutes)

	req := httptest.NewRequest(http.MethodGet, "/api/documents/status", nil)
	authorized(t, req)
	resp, err := app.Test(req)
	require.NoError(t, err)
	data := decodeEnvelope(t, resp).Data.(map[string]interface{})
	assert.Equal(t, false, data["has_documents"])

	req = httptest.NewRequest(http.MethodGet, "/api/documents/stats", nil)
	authorized(t, req)
	resp, err = app.Test(req)
	require.NoError(t, err)
	data = decodeEnvelope(t, resp).Data.(map[string]interface{})
	assert.Equal(t, float64(9), data["total_chunks"])
}
