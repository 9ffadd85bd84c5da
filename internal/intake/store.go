// internal/intake/store.go
package intake

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"intake-service/pkg/models"
)

// Store is the gorm-backed persistence layer for referrals and sync bookkeeping.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateReferral(ctx context.Context, rec *models.Referral) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *Store) GetReferral(ctx context.Context, id uuid.UUID) (*models.Referral, error) {
	var rec models.Referral
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListReferrals returns a page of referrals, newest first, optionally filtered by
// kind and board sync status.
func (s *Store) ListReferrals(ctx context.Context, kind, status string, limit, offset int) ([]models.Referral, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Referral{})
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if status != "" {
		q = q.Where("board_sync_status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []models.Referral
	err := q.Order("submitted_at DESC").Limit(limit).Offset(offset).Find(&recs).Error
	return recs, total, err
}

// UpdateBoardLink writes board link-state columns for one referral. Callers pass only
// the columns they intend to change, so a failed sync never clears a prior item link.
func (s *Store) UpdateBoardLink(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return s.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateCRMLink writes CRM link-state columns for one referral.
func (s *Store) UpdateCRMLink(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return s.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// SetAuditURL records the archived raw-payload location once the upload succeeds.
func (s *Store) SetAuditURL(ctx context.Context, id uuid.UUID, url string) error {
	return s.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("id = ?", id).
		Update("audit_url", url).Error
}

// ReferralsNeedingSync finds records the backfill pass should re-drive: board sync
// failed, never ran, or stuck pending longer than stuckAfter.
func (s *Store) ReferralsNeedingSync(ctx context.Context, stuckAfter time.Duration, limit int) ([]models.Referral, error) {
	cutoff := time.Now().Add(-stuckAfter)
	var recs []models.Referral
	err := s.db.WithContext(ctx).
		Where("board_sync_status IN ? OR (board_sync_status = ? AND updated_at < ?)",
			[]models.SyncStatus{models.SyncStatusFailed, models.SyncStatusUnsynced}, models.SyncStatusPending, cutoff).
		Order("submitted_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// RegisterStaffDevice upserts a push-alert device by token.
func (s *Store) RegisterStaffDevice(ctx context.Context, label, token string) (*models.StaffDevice, error) {
	var dev models.StaffDevice
	err := s.db.WithContext(ctx).First(&dev, "fcm_token = ?", token).Error
	if err == gorm.ErrRecordNotFound {
		dev = models.StaffDevice{Label: label, FCMToken: token}
		if err := s.db.WithContext(ctx).Create(&dev).Error; err != nil {
			return nil, err
		}
		return &dev, nil
	}
	if err != nil {
		return nil, err
	}
	if label != "" && label != dev.Label {
		dev.Label = label
		if err := s.db.WithContext(ctx).Save(&dev).Error; err != nil {
			return nil, err
		}
	}
	return &dev, nil
}

// StaffDeviceTokens lists every registered push-alert token.
func (s *Store) StaffDeviceTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	err := s.db.WithContext(ctx).
		Model(&models.StaffDevice{}).
		Pluck("fcm_token", &tokens).Error
	return tokens, err
}

// GetSyncValue reads one sync bookkeeping value (e.g. last backfill run time).
func (s *Store) GetSyncValue(ctx context.Context, key string) (string, error) {
	var cfg models.SyncConfig
	err := s.db.WithContext(ctx).First(&cfg, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cfg.Value, nil
}

// SetSyncValue upserts one sync bookkeeping value.
func (s *Store) SetSyncValue(ctx context.Context, key, value string) error {
	var cfg models.SyncConfig
	err := s.db.WithContext(ctx).First(&cfg, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.WithContext(ctx).Create(&models.SyncConfig{Key: key, Value: value}).Error
	}
	if err != nil {
		return err
	}
	cfg.Value = value
	return s.db.WithContext(ctx).Save(&cfg).Error
}
