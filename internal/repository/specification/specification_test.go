package specification

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type documentRow struct {
	Id       uuid.UUID
	UserId   uuid.UUID
	Filename string
}

func (documentRow) TableName() string { return "documents" }

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost"}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Skipf("postgres dialector unavailable: %v", err)
	}
	return db
}

func TestSpecifications_ComposeIntoSQL(t *testing.T) {
	db := dryRunDB(t)
	userId := uuid.New()

	query := db.Model(&documentRow{})
	for _, spec := range []Specification{
		DocumentOwnedByUser{UserID: userId},
		FilenameContains{Query: "report"},
		OrderBy{Field: "created_at", Desc: true},
		Pagination{Limit: 5},
	} {
		query = spec.Apply(query)
	}

	stmt := query.Find(&[]documentRow{}).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "documents.user_id = $1")
	assert.Contains(t, sql, "filename ILIKE $2")
	assert.Contains(t, sql, "ORDER BY created_at DESC")
	assert.Contains(t, sql, "LIMIT $3")
	assert.Equal(t, "%report%", stmt.Vars[1])
}
