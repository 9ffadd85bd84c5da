package models

import "time"

// FormKind is a seeded row per supported referral form, consumed by the staff dashboard
// for filter labels. Kind keys must match the sync catalog's scopes.
type FormKind struct {
	Key       string    `json:"key" gorm:"primaryKey;type:varchar(30)"`
	Label     string    `json:"label" gorm:"type:varchar(100);not null"`
	Enabled   bool      `json:"enabled" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FormKind) TableName() string {
	return "form_kinds"
}
