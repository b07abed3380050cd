package service

import (
	"context"
	"strings"

	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/pkg/serverutils"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/chat"
	"docchat-be/pkg/events"

	"github.com/google/uuid"
)

const (
	defaultDocumentListLimit = 50
	defaultSearchLimit       = 10
	recentDocumentsLimit     = 5
)

type IDocumentService interface {
	List(ctx context.Context, userId uuid.UUID, req *dto.ListDocumentsRequest) ([]dto.DocumentResponse, error)
	Search(ctx context.Context, userId uuid.UUID, req *dto.SearchDocumentsRequest) (*dto.SearchDocumentsResponse, error)
	Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error
	Stats(ctx context.Context, userId uuid.UUID) (*dto.DocumentStatsResponse, error)
	Status(ctx context.Context, userId uuid.UUID) (*dto.DocumentStatusResponse, error)
}

type documentService struct {
	uowFactory unitofwork.RepositoryFactory
	retriever  Retriever
	publisher  IPublisherService
	logger     logger.ILogger
}

func NewDocumentService(
	uowFactory unitofwork.RepositoryFactory,
	retriever Retriever,
	publisher IPublisherService,
	log logger.ILogger,
) IDocumentService {
	return &documentService{
		uowFactory: uowFactory,
		retriever:  retriever,
		publisher:  publisher,
		logger:     log,
	}
}

func toDocumentResponse(s *entity.DocumentSummary) dto.DocumentResponse {
	return dto.DocumentResponse{
		Id:          s.Id,
		Filename:    s.Filename,
		ContentType: s.ContentType,
		Source:      s.Source,
		TotalWords:  s.TotalWords,
		ChunkCount:  s.ChunkCount,
		Metadata:    s.Metadata,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func newestFirst(limit int) []specification.Specification {
	return []specification.Specification{
		specification.OrderBy{Field: "documents.created_at", Desc: true},
		specification.Pagination{Limit: limit},
	}
}

func (ds *documentService) List(ctx context.Context, userId uuid.UUID, req *dto.ListDocumentsRequest) ([]dto.DocumentResponse, error) {
	limit := defaultDocumentListLimit
	var specs []specification.Specification
	if req != nil {
		if err := serverutils.ValidateRequest(req); err != nil {
			return nil, err
		}
		if req.Limit > 0 {
			limit = req.Limit
		}
		if name := strings.TrimSpace(req.Filename); name != "" {
			specs = append(specs, specification.FilenameContains{Query: name})
		}
	}

	uow := ds.uowFactory.NewUnitOfWork(ctx)
	specs = append(specs, newestFirst(limit)...)
	summaries, err := uow.DocumentRepository().ListWithChunkCount(ctx, userId, specs...)
	if err != nil {
		return nil, err
	}

	res := make([]dto.DocumentResponse, 0, len(summaries))
	for _, s := range summaries {
		res = append(res, toDocumentResponse(s))
	}
	return res, nil
}

// Search surfaces retrieval errors, unlike chat which degrades.
func (ds *documentService) Search(ctx context.Context, userId uuid.UUID, req *dto.SearchDocumentsRequest) (*dto.SearchDocumentsResponse, error) {
	if err := serverutils.ValidateRequest(req); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	items, err := ds.retriever.Search(ctx, userId, req.Query, limit)
	if err != nil {
		return nil, serverutils.ErrBadGateway("document search failed", err)
	}
	if items == nil {
		items = []chat.ContextItem{}
	}
	return &dto.SearchDocumentsResponse{Query: req.Query, Results: items}, nil
}

func (ds *documentService) Delete(ctx context.Context, userId uuid.UUID, id uuid.UUID) error {
	uow := ds.uowFactory.NewUnitOfWork(ctx)

	document, err := uow.DocumentRepository().FindOne(ctx,
		specification.ByID{ID: id},
		specification.DocumentOwnedByUser{UserID: userId},
	)
	if err != nil {
		return err
	}
	if document == nil {
		return serverutils.ErrNotFound("document not found")
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.DocumentChunkRepository().DeleteByDocumentId(ctx, id); err != nil {
		return err
	}
	if err := uow.DocumentRepository().Delete(ctx, id); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	ds.logger.Info("DOCUMENT", "Document deleted", map[string]interface{}{
		"user_id":     userId.String(),
		"document_id": id.String(),
		"filename":    document.Filename,
	})

	if ds.publisher != nil {
		evt := events.New(events.DocumentDeleted, map[string]interface{}{
			"user_id":     userId.String(),
			"document_id": id.String(),
			"filename":    document.Filename,
		})
		if err := ds.publisher.Publish(ctx, evt); err != nil {
			ds.logger.Warn("DOCUMENT", "Failed to publish DOCUMENT_DELETED", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

func (ds *documentService) Stats(ctx context.Context, userId uuid.UUID) (*dto.DocumentStatsResponse, error) {
	uow := ds.uowFactory.NewUnitOfWork(ctx)

	stats, err := uow.DocumentRepository().Stats(ctx, userId)
	if err != nil {
		return nil, err
	}
	recent, err := uow.DocumentRepository().ListWithChunkCount(ctx, userId, newestFirst(recentDocumentsLimit)...)
	if err != nil {
		return nil, err
	}

	res := &dto.DocumentStatsResponse{
		TotalDocuments:  stats.TotalDocuments,
		TotalChunks:     stats.TotalChunks,
		TotalWords:      stats.TotalWords,
		RecentDocuments: make([]dto.DocumentResponse, 0, len(recent)),
	}
	for _, s := range recent {
		res.RecentDocuments = append(res.RecentDocuments, toDocumentResponse(s))
	}
	return res, nil
}

func (ds *documentService) Status(ctx context.Context, userId uuid.UUID) (*dto.DocumentStatusResponse, error) {
	uow := ds.uowFactory.NewUnitOfWork(ctx)
	count, err := uow.DocumentRepository().Count(ctx, specification.DocumentOwnedByUser{UserID: userId})
	if err != nil {
		return nil, err
	}
	return &dto.DocumentStatusResponse{HasDocuments: count > 0, DocumentCount: count}, nil
}
