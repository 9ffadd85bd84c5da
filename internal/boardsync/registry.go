// internal/boardsync/registry.go
package boardsync

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"intake-service/pkg/models"
)

// GormRegistry persists SchemaRegistryEntry rows in Postgres. Writes are merge-style
// upserts keyed by (board, scope, slug), so a concurrent EnsureFields losing the race
// costs a redundant lookup, never corruption.
type GormRegistry struct {
	db *gorm.DB
}

func NewGormRegistry(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db}
}

func (r *GormRegistry) Entries(ctx context.Context, boardID string) ([]models.SchemaRegistryEntry, error) {
	var entries []models.SchemaRegistryEntry
	err := r.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Find(&entries).Error
	return entries, err
}

func (r *GormRegistry) Persist(ctx context.Context, entries []models.SchemaRegistryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "board_id"}, {Name: "scope"}, {Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{"remote_id", "title", "value_kind", "created_at_epoch_ms"}),
		}).
		CreateInBatches(entries, 50).Error
}
