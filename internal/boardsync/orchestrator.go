// internal/boardsync/orchestrator.go
package boardsync

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"intake-service/internal/syncerr"
	"intake-service/pkg/models"
)

// ItemAPI is the slice of the board client the orchestrator needs.
type ItemAPI interface {
	CreateItem(ctx context.Context, boardID, groupID, name string, values map[string]ColumnValue) (Item, error)
	UpdateItem(ctx context.Context, boardID, itemID string, values map[string]ColumnValue) error
}

// FieldEnsurer provisions the remote schema for a scope. Satisfied by *Provisioner.
type FieldEnsurer interface {
	EnsureFields(ctx context.Context, scope Scope) (ColumnIDMap, error)
}

// LinkStore persists board link state back onto the originating referral row.
type LinkStore interface {
	UpdateBoardLink(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

// maxStoredErrorLen bounds persisted sync errors so repeated failures cannot grow the
// referral row without limit.
const maxStoredErrorLen = 500

// itemNameExcerptLen bounds the free-text component of a derived item name.
const itemNameExcerptLen = 60

const itemNameSeparator = " – "

// Orchestrator drives one referral's board sync: create vs. update by stored external
// id, with every outcome — success or failure — written back to the referral's link
// state. Errors are returned for logging but the caller's submission flow must treat
// them as already handled.
type Orchestrator struct {
	api             ItemAPI
	fields          FieldEnsurer
	store           LinkStore
	boardID         string
	groupID         string
	defaultPersonID int64
}

func NewOrchestrator(api ItemAPI, fields FieldEnsurer, store LinkStore, boardID, groupID string, defaultPersonID int64) *Orchestrator {
	return &Orchestrator{
		api:             api,
		fields:          fields,
		store:           store,
		boardID:         boardID,
		groupID:         groupID,
		defaultPersonID: defaultPersonID,
	}
}

// SyncReferral projects rec into the board, creating the item on first sync and
// updating it on subsequent ones. rec is mutated in place to mirror the persisted
// link state.
func (o *Orchestrator) SyncReferral(ctx context.Context, rec *models.Referral) error {
	rec.BoardSyncStatus = models.SyncStatusPending
	if err := o.store.UpdateBoardLink(ctx, rec.ID, map[string]any{"board_sync_status": models.SyncStatusPending}); err != nil {
		return o.fail(ctx, rec, err)
	}

	scope := ScopeForKind(rec.Kind)
	ids, err := o.fields.EnsureFields(ctx, scope)
	if err != nil {
		return o.fail(ctx, rec, err)
	}

	meta := SubmissionMetadata{
		SubmittedAt:    rec.SubmittedAt,
		Reviewed:       rec.Reviewed,
		ReviewedAt:     rec.ReviewedAt,
		SubmittedBy:    rec.SubmittedBy,
		SubmissionType: submissionTypeLabel(rec.SubmissionType),
	}
	values := MapColumnValues(rec.Values(), meta, scope, ids, o.defaultPersonID)

	if rec.BoardItemID != nil && *rec.BoardItemID != "" {
		if err := o.api.UpdateItem(ctx, o.boardID, *rec.BoardItemID, values); err != nil {
			return o.fail(ctx, rec, err)
		}
		return o.succeed(ctx, rec, *rec.BoardItemID, derefOrEmpty(rec.BoardItemURL))
	}

	item, err := o.api.CreateItem(ctx, o.boardID, o.groupID, ItemName(rec), values)
	if err != nil {
		return o.fail(ctx, rec, err)
	}
	return o.succeed(ctx, rec, item.ID, item.URL)
}

func (o *Orchestrator) succeed(ctx context.Context, rec *models.Referral, itemID, itemURL string) error {
	now := time.Now()
	rec.BoardItemID = &itemID
	rec.BoardSyncStatus = models.SyncStatusSuccess
	rec.BoardSyncError = nil
	rec.BoardSyncedAt = &now
	updates := map[string]any{
		"board_item_id":     itemID,
		"board_sync_status": models.SyncStatusSuccess,
		"board_sync_error":  nil,
		"board_synced_at":   now,
	}
	if itemURL != "" {
		rec.BoardItemURL = &itemURL
		updates["board_item_url"] = itemURL
	}
	if err := o.store.UpdateBoardLink(ctx, rec.ID, updates); err != nil {
		log.Printf("⚠️ [SYNC] Board item %s synced but saving link state for referral %s failed: %v", itemID, rec.ID, err)
		return err
	}
	log.Printf("✅ [SYNC] Referral %s → board item %s", rec.ID, itemID)
	return nil
}

// fail records the failure without touching a previously linked item id/url, so a later
// failed update never loses a successful link.
func (o *Orchestrator) fail(ctx context.Context, rec *models.Referral, cause error) error {
	msg := syncerr.Truncate(cause.Error(), maxStoredErrorLen)
	rec.BoardSyncStatus = models.SyncStatusFailed
	rec.BoardSyncError = &msg
	if err := o.store.UpdateBoardLink(ctx, rec.ID, map[string]any{
		"board_sync_status": models.SyncStatusFailed,
		"board_sync_error":  msg,
	}); err != nil {
		log.Printf("❌ [SYNC] Failed to persist failure state for referral %s: %v", rec.ID, err)
	}
	log.Printf("❌ [SYNC] Referral %s board sync failed: %v", rec.ID, cause)
	return cause
}

// ItemName derives a deterministic board item name from the referral's identifying
// fields, joined with a fixed separator, with a generic fallback when every component
// is empty.
func ItemName(rec *models.Referral) string {
	components := []string{
		KindLabel(rec.Kind),
		strings.TrimSpace(rec.FirstName),
		strings.TrimSpace(rec.LastName),
		excerpt(rec.Values()),
	}
	parts := make([]string, 0, len(components))
	for _, c := range components {
		if c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return "New referral"
	}
	return strings.Join(parts, itemNameSeparator)
}

// excerpt pulls the leading free-text field for the item name, truncated by rune so a
// long overview cannot blow up the board view.
func excerpt(values map[string]any) string {
	for _, slug := range []string{"conflict_overview", "support_needed"} {
		s, _ := values[slug].(string)
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			continue
		}
		runes := []rune(s)
		if len(runes) > itemNameExcerptLen {
			return string(runes[:itemNameExcerptLen]) + "…"
		}
		return s
	}
	return ""
}

func submissionTypeLabel(t models.SubmissionType) string {
	switch t {
	case models.SubmissionTypeWeb:
		return "Web"
	case models.SubmissionTypePhone:
		return "Phone"
	case models.SubmissionTypeWalkIn:
		return "Walk-in"
	case models.SubmissionTypeStaff:
		return "Staff"
	default:
		return string(t)
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
