package entity

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	Id          uuid.UUID
	UserId      uuid.UUID
	Filename    string
	ContentType string
	Source      string
	TotalWords  int
	Metadata    map[string]interface{}
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	DeletedAt   *time.Time
	IsDeleted   bool
}

type DocumentChunk struct {
	Id             uuid.UUID
	DocumentId     uuid.UUID
	ChunkIndex     int
	ChunkText      string
	WordCount      int
	EmbeddingValue []float32
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	DeletedAt      *time.Time
	IsDeleted      bool
}

// DocumentSummary is a document row joined with its chunk count.
type DocumentSummary struct {
	Document
	ChunkCount int64
}

type DocumentStats struct {
	TotalDocuments int64
	TotalChunks    int64
	TotalWords     int64
}
