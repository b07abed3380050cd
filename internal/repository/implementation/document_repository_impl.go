package implementation

import (
	"context"
	"errors"

	"docchat-be/internal/entity"
	"docchat-be/internal/mapper"
	"docchat-be/internal/model"
	"docchat-be/internal/repository/contract"
	"docchat-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DocumentMapper
}

func NewDocumentRepository(db *gorm.DB) contract.DocumentRepository {
	return &DocumentRepositoryImpl{
		db:     db,
		mapper: mapper.NewDocumentMapper(),
	}
}

func applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DocumentRepositoryImpl) Create(ctx context.Context, document *entity.Document) error {
	m := r.mapper.ToModel(document)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*document = *r.mapper.ToEntity(m)
	return nil
}

func (r *DocumentRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Document{}, id).Error
}

func (r *DocumentRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Document, error) {
	var m model.Document
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *DocumentRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error) {
	var models []*model.Document
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Document, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *DocumentRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := applySpecifications(r.db.WithContext(ctx).Model(&model.Document{}), specs...)
	err := query.Count(&count).Error
	return count, err
}

func (r *DocumentRepositoryImpl) ListWithChunkCount(ctx context.Context, userId uuid.UUID, specs ...specification.Specification) ([]*entity.DocumentSummary, error) {
	type row struct {
		model.Document
		ChunkCount int64
	}
	var rows []row

	chunkCounts := r.db.Table("document_chunks").
		Select("document_id, COUNT(*) AS chunk_count").
		Where("deleted_at IS NULL").
		Group("document_id")

	query := r.db.WithContext(ctx).
		Table("documents").
		Select("documents.*, COALESCE(cc.chunk_count, 0) AS chunk_count").
		Joins("LEFT JOIN (?) AS cc ON cc.document_id = documents.id", chunkCounts).
		Where("documents.user_id = ?", userId).
		Where("documents.deleted_at IS NULL")
	err := applySpecifications(query, specs...).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]*entity.DocumentSummary, len(rows))
	for i := range rows {
		summaries[i] = &entity.DocumentSummary{
			Document:   *r.mapper.ToEntity(&rows[i].Document),
			ChunkCount: rows[i].ChunkCount,
		}
	}
	return summaries, nil
}

func (r *DocumentRepositoryImpl) Stats(ctx context.Context, userId uuid.UUID) (*entity.DocumentStats, error) {
	var stats entity.DocumentStats

	err := r.db.WithContext(ctx).
		Model(&model.Document{}).
		Select("COUNT(*) AS total_documents, COALESCE(SUM(total_words), 0) AS total_words").
		Where("user_id = ?", userId).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&model.DocumentChunk{}).
		Joins("JOIN documents ON documents.id = document_chunks.document_id").
		Where("documents.user_id = ?", userId).
		Where("documents.deleted_at IS NULL").
		Count(&stats.TotalChunks).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
