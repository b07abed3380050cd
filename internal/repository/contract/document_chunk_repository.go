package contract

import (
	"context"

	"docchat-be/internal/entity"

	"github.com/google/uuid"
)

// ScoredDocumentChunk wraps a chunk with its similarity score and owning document's filename
type ScoredDocumentChunk struct {
	Chunk      *entity.DocumentChunk
	Filename   string
	Similarity float64 // 0.0 to 1.0 (1.0 = identical)
}

type DocumentChunkRepository interface {
	DeleteByDocumentId(ctx context.Context, documentId uuid.UUID) error
	// SearchSimilarWithScore returns the user's chunks closest to embedding, best first.
	SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, userId uuid.UUID, threshold float64) ([]*ScoredDocumentChunk, error)
}
