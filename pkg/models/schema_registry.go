package models

// SchemaRegistryEntry caches the remote column id provisioned for one catalog field on
// one board. Created the first time a field is provisioned; replaced only when the
// remote id it references no longer exists on the board (self-healing).
type SchemaRegistryEntry struct {
	ID               uint   `json:"id" gorm:"primaryKey"`
	BoardID          string `json:"board_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_board_scope_slug,priority:1"`
	Scope            string `json:"scope" gorm:"type:varchar(30);not null;uniqueIndex:idx_board_scope_slug,priority:2"`
	Slug             string `json:"slug" gorm:"type:varchar(100);not null;uniqueIndex:idx_board_scope_slug,priority:3"`
	RemoteID         string `json:"remote_id" gorm:"type:varchar(64);not null"`
	Title            string `json:"title" gorm:"type:varchar(255);not null"`
	ValueKind        string `json:"value_kind" gorm:"type:varchar(30);not null"`
	CreatedAtEpochMs int64  `json:"created_at_epoch_ms" gorm:"not null"`
}

func (SchemaRegistryEntry) TableName() string {
	return "board_schema_registry"
}
