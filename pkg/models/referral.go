package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ReferralKind string

const (
	ReferralKindConflict ReferralKind = "conflict"
	ReferralKindGeneral  ReferralKind = "general"
)

type SyncStatus string

const (
	SyncStatusUnsynced SyncStatus = ""
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusSuccess  SyncStatus = "success"
	SyncStatusFailed   SyncStatus = "failed"
)

type SubmissionType string

const (
	SubmissionTypeWeb    SubmissionType = "web"
	SubmissionTypePhone  SubmissionType = "phone"
	SubmissionTypeWalkIn SubmissionType = "walk_in"
	SubmissionTypeStaff  SubmissionType = "staff"
)

// Referral is a locally-persisted, already-validated referral submission — *one per case*.
// Key contact fields are lifted into columns for dashboard filtering; the full validated
// form payload lives in FormValues (keyed by catalog slug, including secondary_contacts).
type Referral struct {
	ID        uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Kind      ReferralKind `json:"kind" gorm:"type:varchar(30);not null;index"`
	FirstName string       `json:"first_name" gorm:"type:varchar(100)"`
	LastName  string       `json:"last_name" gorm:"type:varchar(100)"`
	Email     string       `json:"email" gorm:"type:varchar(255);index"`
	Phone     string       `json:"phone" gorm:"type:varchar(50)"`

	FormValues datatypes.JSON `json:"form_values" gorm:"type:jsonb"` // map[slug]value

	// Submission metadata
	SubmittedAt    time.Time      `json:"submitted_at" gorm:"not null;index"`
	SubmittedBy    string         `json:"submitted_by" gorm:"type:varchar(255)"`
	SubmissionType SubmissionType `json:"submission_type" gorm:"type:varchar(20);not null;default:'web'"`
	Reviewed       bool           `json:"reviewed" gorm:"not null;default:false"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`

	// Board link state — written only by the sync orchestrator. A failed attempt never
	// clears a previously linked BoardItemID/BoardItemURL.
	BoardItemID     *string    `json:"board_item_id,omitempty" gorm:"type:varchar(64);index"`
	BoardItemURL    *string    `json:"board_item_url,omitempty" gorm:"type:varchar(500)"`
	BoardSyncStatus SyncStatus `json:"board_sync_status" gorm:"type:varchar(20);not null;default:''"`
	BoardSyncError  *string    `json:"board_sync_error,omitempty" gorm:"type:varchar(600)"`
	BoardSyncedAt   *time.Time `json:"board_synced_at,omitempty"`

	// CRM link state
	CRMLeadID     *string    `json:"crm_lead_id,omitempty" gorm:"type:varchar(64);index"`
	CRMSyncStatus SyncStatus `json:"crm_sync_status" gorm:"type:varchar(20);not null;default:''"`
	CRMSyncError  *string    `json:"crm_sync_error,omitempty" gorm:"type:varchar(600)"`
	CRMSyncedAt   *time.Time `json:"crm_synced_at,omitempty"`

	// Forensic snapshot of the raw submission in object storage
	AuditURL *string `json:"audit_url,omitempty" gorm:"type:varchar(500)"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (Referral) TableName() string {
	return "referrals"
}

// Values decodes FormValues into a slug-keyed map. A malformed payload degrades to an
// empty map so the sync path never trips over bad historical rows.
func (r *Referral) Values() map[string]any {
	values := make(map[string]any)
	if len(r.FormValues) > 0 {
		_ = json.Unmarshal(r.FormValues, &values)
	}
	return values
}

// ReferralRequest is the API input for a new submission (already validated upstream by
// the form layer; this service only checks the essentials).
type ReferralRequest struct {
	Kind           ReferralKind   `json:"kind" validate:"required,oneof=conflict general"`
	Values         map[string]any `json:"values" validate:"required"`
	SubmittedBy    string         `json:"submitted_by,omitempty"`
	SubmissionType SubmissionType `json:"submission_type,omitempty"`
}

// SyncEvent is the payload broadcast to staff dashboards over SSE after each attempt.
type SyncEvent struct {
	ReferralID uuid.UUID  `json:"referral_id"`
	Target     string     `json:"target"` // "board" or "crm"
	Status     SyncStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
	ExternalID string     `json:"external_id,omitempty"`
}
