package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/internal/repository/contract"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/chat"
	"docchat-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocumentRepo struct {
	contract.DocumentRepository

	docs      map[uuid.UUID]*entity.Document
	summaries []*entity.DocumentSummary
	stats     *entity.DocumentStats
	deleted   []uuid.UUID
	limits    []int
	listSpecs [][]specification.Specification
}

// FindOne understands the id and owner specifications the service uses.
func (r *fakeDocumentRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Document, error) {
	var id, owner uuid.UUID
	for _, s := range specs {
		switch v := s.(type) {
		case specification.ByID:
			id = v.ID
		case specification.DocumentOwnedByUser:
			owner = v.UserID
		}
	}
	doc, ok := r.docs[id]
	if !ok || doc.UserId != owner {
		return nil, nil
	}
	return doc, nil
}

func (r *fakeDocumentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.deleted = append(r.deleted, id)
	delete(r.docs, id)
	return nil
}

func (r *fakeDocumentRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var n int64
	for _, s := range specs {
		if owner, ok := s.(specification.DocumentOwnedByUser); ok {
			for _, d := range r.docs {
				if d.UserId == owner.UserID {
					n++
				}
			}
		}
	}
	return n, nil
}

func (r *fakeDocumentRepo) ListWithChunkCount(ctx context.Context, userId uuid.UUID, specs ...specification.Specification) ([]*entity.DocumentSummary, error) {
	limit := len(r.summaries)
	for _, s := range specs {
		if page, ok := s.(specification.Pagination); ok {
			limit = page.Limit
		}
	}
	r.limits = append(r.limits, limit)
	r.listSpecs = append(r.listSpecs, specs)
	if len(r.summaries) > limit {
		return r.summaries[:limit], nil
	}
	return r.summaries, nil
}

func (r *fakeDocumentRepo) Stats(ctx context.Context, userId uuid.UUID) (*entity.DocumentStats, error) {
	return r.stats, nil
}

type fakeDocChunkRepo struct {
	contract.DocumentChunkRepository
	deletedFor []uuid.UUID
	err        error
}

func (r *fakeDocChunkRepo) DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error {
	if r.err != nil {
		return r.err
	}
	r.deletedFor = append(r.deletedFor, documentId)
	return nil
}

type fakeDocUow struct {
	docs      *fakeDocumentRepo
	chunks    *fakeDocChunkRepo
	began     bool
	committed bool
}

func (u *fakeDocUow) Begin(ctx context.Context) error { u.began = true; return nil }
func (u *fakeDocUow) Commit() error { u.committed = true; return nil }
func (u *fakeDocUow) Rollback() error { return nil }
func (u *fakeDocUow) DocumentRepository() contract.DocumentRepository {
	return u.docs
}
func (u *fakeDocUow) DocumentChunkRepository() contract.DocumentChunkRepository {
	return u.chunks
}

type fakeDocFactory struct{ uow *fakeDocUow }

func (f fakeDocFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork { return f.uow }

func newDocumentFixture(r Retriever) (IDocumentService, *fakeDocUow, *fakePublisher, uuid.UUID, uuid.UUID) {
	owner := uuid.New()
	docId := uuid.New()
	uow := &fakeDocUow{
		docs: &fakeDocumentRepo{
			docs: map[uuid.UUID]*entity.Document{
				docId: {Id: docId, UserId: owner, Filename: "report.pdf", CreatedAt: time.Now()},
			},
			stats: &entity.DocumentStats{TotalDocuments: 1, TotalChunks: 4, TotalWords: 900},
		},
		chunks: &fakeDocChunkRepo{},
	}
	pub := &fakePublisher{}
	svc := NewDocumentService(fakeDocFactory{uow}, r, pub, logger.NewNopLogger())
	return svc, uow, pub, owner, docId
}

func TestDocumentService_Delete(t *testing.T) {
	svc, uow, pub, owner, docId := newDocumentFixture(&fakeRetriever{})

	require.NoError(t, svc.Delete(context.Background(), owner, docId))

	assert.True(t, uow.began)
	assert.True(t, uow.committed)
	assert.Equal(t, []uuid.UUID{docId}, uow.chunks.deletedFor)
	assert.Equal(t, []uuid.UUID{docId}, uow.docs.deleted)

	published := pub.published()
	require.Len(t, published, 1)
	assert.Equal(t, events.DocumentDeleted, published[0].EventType())
	assert.Equal(t, owner.String(), events.String(published[0], "user_id"))
	assert.Equal(t, docId.String(), events.String(published[0], "document_id"))
}

func TestDocumentService_DeleteNotOwnedIsNotFound(t *testing.T) {
	svc, uow, pub, _, docId := newDocumentFixture(&fakeRetriever{})

	err := svc.Delete(context.Background(), uuid.New(), docId)
	var appErr *serverutils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusNotFound, appErr.Code)
	assert.False(t, uow.began)
	assert.Empty(t, pub.published())
}

func TestDocumentService_DeleteChunkFailureDoesNotCommit(t *testing.T) {
	svc, uow, pub, owner, docId := newDocumentFixture(&fakeRetriever{})
	uow.chunks.err = errors.New("locked")

	assert.Error(t, svc.Delete(context.Background(), owner, docId))
	assert.False(t, uow.committed)
	assert.Empty(t, uow.docs.deleted)
	assert.Empty(t, pub.published())
}

func TestDocumentService_Status(t *testing.T) {
	svc, _, _, owner, _ := newDocumentFixture(&fakeRetriever{})

	res, err := svc.Status(context.Background(), owner)
	require.NoError(t, err)
	assert.True(t, res.HasDocuments)
	assert.EqualValues(t, 1, res.DocumentCount)

	res, err = svc.Status(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, res.HasDocuments)
}

func TestDocumentService_ListAndStats(t *testing.T) {
	svc, uow, _, owner, _ := newDocumentFixture(&fakeRetriever{})
	for i := 0; i < 7; i++ {
		uow.docs.summaries = append(uow.docs.summaries, &entity.DocumentSummary{
			Document:   entity.Document{Id: uuid.New(), Filename: "f.txt"},
			ChunkCount: int64(i),
		})
	}

	list, err := svc.List(context.Background(), owner, &dto.ListDocumentsRequest{})
	require.NoError(t, err)
	assert.Len(t, list, 7)

	_, err = svc.List(context.Background(), owner, &dto.ListDocumentsRequest{Limit: 500})
	assert.Error(t, err)

	stats, err := svc.Stats(context.Background(), owner)
	require.NoError(t, err)
	assert.EqualValues(t, 900, stats.TotalWords)
	assert.Len(t, stats.RecentDocuments, recentDocumentsLimit)
	assert.Equal(t, []int{defaultDocumentListLimit, recentDocumentsLimit}, uow.docs.limits)
	newest := specification.OrderBy{Field: "documents.created_at", Desc: true}
	assert.Equal(t, []specification.Specification{newest, specification.Pagination{Limit: defaultDocumentListLimit}}, uow.docs.listSpecs[0])
	assert.Equal(t, []specification.Specification{newest, specification.Pagination{Limit: recentDocumentsLimit}}, uow.docs.listSpecs[1])

	_, err = svc.List(context.Background(), owner, &dto.ListDocumentsRequest{Filename: " report "})
	require.NoError(t, err)
	assert.Equal(t, []specification.Specification{
		specification.FilenameContains{Query: "report"},
		newest,
		specification.Pagination{Limit: defaultDocumentListLimit},
	}, uow.docs.listSpecs[2])
}

func TestDocumentService_SearchSurfacesErrors(t *testing.T) {
	svc, _, _, owner, _ := newDocumentFixture(&fakeRetriever{err: errors.New("embedding down")})

	_, err := svc.Search(context.Background(), owner, &dto.SearchDocumentsRequest{Query: "x"})
	var appErr *serverutils.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadGateway, appErr.Code)
}

func TestDocumentService_Search(t *testing.T) {
	r := &fakeRetriever{items: []chat.ContextItem{{Filename: "a", Score: 0.8}}}
	svc, _, _, owner, _ := newDocumentFixture(r)

	res, err := svc.Search(context.Background(), owner, &dto.SearchDocumentsRequest{Query: "x"})
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, []int{defaultSearchLimit}, r.calls)

	_, err = svc.Search(context.Background(), owner, &dto.SearchDocumentsRequest{Query: "  "})
	assert.Error(t, err)
}
