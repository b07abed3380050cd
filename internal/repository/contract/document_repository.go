package contract

import (
	"context"

	"docchat-be/internal/entity"
	"docchat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type DocumentRepository interface {
	Create(ctx context.Context, document *entity.Document) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Document, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// ListWithChunkCount returns the user's documents, each with its live chunk count.
	// specs filter, order and page the documents.
	ListWithChunkCount(ctx context.Context, userId uuid.UUID, specs ...specification.Specification) ([]*entity.DocumentSummary, error)
	Stats(ctx context.Context, userId uuid.UUID) (*entity.DocumentStats, error)
}
