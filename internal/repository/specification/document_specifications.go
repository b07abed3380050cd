package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentOwnedByUser struct {
	UserID uuid.UUID
}

func (s DocumentOwnedByUser) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("documents.user_id = ?", s.UserID)
}

// FilenameContains matches filenames case-insensitively
type FilenameContains struct {
	Query string
}

func (s FilenameContains) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("filename ILIKE ?", "%"+s.Query+"%")
}
