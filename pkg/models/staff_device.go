// pkg/models/staff_device.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// StaffDevice is one registered dashboard device that receives push alerts when a
// referral sync exhausts its retries.
type StaffDevice struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Label     string    `json:"label" gorm:"type:varchar(100)"`
	FCMToken  string    `json:"fcm_token" gorm:"type:varchar(512);uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StaffDevice) TableName() string {
	return "staff_devices"
}
