package dto

import (
	"time"

	"docchat-be/pkg/chat"

	"github.com/google/uuid"
)

type DocumentResponse struct {
	Id          uuid.UUID              `json:"id"`
	Filename    string                 `json:"filename"`
	ContentType string                 `json:"content_type"`
	Source      string                 `json:"source"`
	TotalWords  int                    `json:"total_words"`
	ChunkCount  int64                  `json:"chunk_count"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   *time.Time             `json:"updated_at"`
}

type ListDocumentsRequest struct {
	Limit    int    `query:"limit" json:"limit" validate:"omitempty,gt=0,lte=200"`
	Filename string `query:"filename" json:"filename" validate:"omitempty,max=255"`
}

type SearchDocumentsRequest struct {
	Query string `json:"query" validate:"notblank"`
	Limit int    `json:"limit" validate:"omitempty,gt=0,lte=50"`
}

type SearchDocumentsResponse struct {
	Query   string             `json:"query"`
	Results []chat.ContextItem `json:"results"`
}

type DocumentStatsResponse struct {
	TotalDocuments  int64              `json:"total_documents"`
	TotalChunks     int64              `json:"total_chunks"`
	TotalWords      int64              `json:"total_words"`
	RecentDocuments []DocumentResponse `json:"recent_documents"`
}

type DocumentStatusResponse struct {
	HasDocuments  bool  `json:"has_documents"`
	DocumentCount int64 `json:"document_count"`
}
