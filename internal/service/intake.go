// internal/service/intake.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"intake-service/internal/archive"
	"intake-service/internal/boardsync"
	"intake-service/internal/config"
	"intake-service/internal/crm"
	"intake-service/internal/email"
	"intake-service/internal/email/templates"
	"intake-service/internal/fcm"
	"intake-service/internal/intake"
	"intake-service/internal/sse"
	"intake-service/internal/syncerr"
	"intake-service/pkg/models"
)

// lastBackfillKey is the sync bookkeeping key recording the previous backfill run.
const lastBackfillKey = "backfill.last_run"

// backfillStuckAfter is how long a referral may sit in pending before backfill
// considers its original sync goroutine dead and re-drives it.
const backfillStuckAfter = 15 * time.Minute

// backfillBatchLimit bounds one backfill pass.
const backfillBatchLimit = 100

// IntakeService owns the referral lifecycle: accept and persist the submission, then
// drive the outbound projections (board item, CRM lead, audit archive) in the
// background so the submitter never waits on a remote system.
type IntakeService struct {
	cfg     *config.Config
	store   *intake.Store
	board   *boardsync.Orchestrator
	crm     *crm.Client     // nil when CRM sync is not configured
	archive *archive.Client // nil when R2 is not configured
	emails  *email.Sender
	fcm     *fcm.FCMClient // nil when push alerts are not configured
	broker  *sse.Broker
}

func NewIntakeService(
	cfg *config.Config,
	store *intake.Store,
	board *boardsync.Orchestrator,
	crmClient *crm.Client,
	archiveClient *archive.Client,
	emails *email.Sender,
	fcmClient *fcm.FCMClient,
	broker *sse.Broker,
) *IntakeService {
	return &IntakeService{
		cfg:     cfg,
		store:   store,
		board:   board,
		crm:     crmClient,
		archive: archiveClient,
		emails:  emails,
		fcm:     fcmClient,
		broker:  broker,
	}
}

// SubmitReferral validates and persists a new referral, then kicks off the outbound
// sync in the background. The returned record reflects only the local write; sync
// state arrives later via the dashboard stream.
func (s *IntakeService) SubmitReferral(ctx context.Context, req *models.ReferralRequest) (*models.Referral, error) {
	if req.Kind != models.ReferralKindConflict && req.Kind != models.ReferralKindGeneral {
		return nil, syncerr.New(syncerr.KindValidation, "intake.submit", fmt.Sprintf("unknown referral kind %q", req.Kind))
	}
	if len(req.Values) == 0 {
		return nil, syncerr.New(syncerr.KindValidation, "intake.submit", "values must not be empty")
	}

	formValues, err := json.Marshal(req.Values)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindValidation, "intake.submit", err)
	}

	submissionType := req.SubmissionType
	if submissionType == "" {
		submissionType = models.SubmissionTypeWeb
	}

	rec := &models.Referral{
		Kind:           req.Kind,
		FirstName:      stringValue(req.Values, "first_name"),
		LastName:       stringValue(req.Values, "last_name"),
		Email:          stringValue(req.Values, "email"),
		Phone:          stringValue(req.Values, "phone"),
		FormValues:     formValues,
		SubmittedAt:    time.Now().UTC(),
		SubmittedBy:    req.SubmittedBy,
		SubmissionType: submissionType,
	}
	if err := s.store.CreateReferral(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist referral: %w", err)
	}
	log.Printf("📥 [INTAKE] Referral %s accepted (kind=%s, type=%s)", rec.ID, rec.Kind, rec.SubmissionType)

	s.emails.SendReferralReceived(rec.Email, templates.ReferralReceivedData{
		FirstName:   rec.FirstName,
		KindLabel:   boardsync.KindLabel(rec.Kind),
		SubmittedAt: rec.SubmittedAt.Format("January 2, 2006 at 3:04 PM MST"),
	})

	go s.syncOne(rec)
	return rec, nil
}

// ResyncReferral re-drives the outbound sync for one referral on staff request.
func (s *IntakeService) ResyncReferral(ctx context.Context, id uuid.UUID) (*models.Referral, error) {
	rec, err := s.store.GetReferral(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Printf("🔄 [INTAKE] Manual resync requested for referral %s", rec.ID)
	go s.syncOne(rec)
	return rec, nil
}

// Backfill re-drives every referral whose sync failed, never ran, or looks stuck.
// Runs synchronously; the admin endpoint reports how many records were picked up.
func (s *IntakeService) Backfill(ctx context.Context) (int, error) {
	recs, err := s.store.ReferralsNeedingSync(ctx, backfillStuckAfter, backfillBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("find referrals needing sync: %w", err)
	}
	log.Printf("🔄 [BACKFILL] Re-driving %d referral(s)", len(recs))

	for i := range recs {
		// Sequential on purpose: a backfill burst must not amplify the rate-limit
		// pressure that likely caused the failures.
		s.syncOne(&recs[i])
	}

	if err := s.store.SetSyncValue(ctx, lastBackfillKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		log.Printf("⚠️ [BACKFILL] Failed to record run time: %v", err)
	}
	return len(recs), nil
}

// LastBackfillRun reports when the previous backfill completed, if ever.
func (s *IntakeService) LastBackfillRun(ctx context.Context) (string, error) {
	return s.store.GetSyncValue(ctx, lastBackfillKey)
}

func (s *IntakeService) ListReferrals(ctx context.Context, kind, status string, limit, offset int) ([]models.Referral, int64, error) {
	return s.store.ListReferrals(ctx, kind, status, limit, offset)
}

func (s *IntakeService) GetReferral(ctx context.Context, id uuid.UUID) (*models.Referral, error) {
	return s.store.GetReferral(ctx, id)
}

func (s *IntakeService) RegisterStaffDevice(ctx context.Context, label, token string) (*models.StaffDevice, error) {
	return s.store.RegisterStaffDevice(ctx, label, token)
}

// syncOne runs the full outbound pipeline for one referral: audit archive, board item,
// then CRM lead. Each leg is independent; a board failure does not block the CRM leg.
// Runs outside any request context.
func (s *IntakeService) syncOne(rec *models.Referral) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s.archiveSnapshot(ctx, rec)

	boardErr := s.board.SyncReferral(ctx, rec)
	event := models.SyncEvent{
		ReferralID: rec.ID,
		Target:     "board",
		Status:     rec.BoardSyncStatus,
	}
	if boardErr != nil {
		event.Error = syncerr.Truncate(boardErr.Error(), 200)
	} else if rec.BoardItemID != nil {
		event.ExternalID = *rec.BoardItemID
	}
	s.broker.Broadcast(sse.Event{Type: "sync.board", Data: event})
	if boardErr != nil {
		s.alertStaff(ctx, rec, "board", boardErr)
	}

	s.syncCRM(ctx, rec)
}

// syncCRM creates the CRM lead for a referral exactly once; an existing lead id makes
// this a no-op since the CRM side is create-only.
func (s *IntakeService) syncCRM(ctx context.Context, rec *models.Referral) {
	if s.crm == nil {
		return
	}
	if rec.CRMLeadID != nil && *rec.CRMLeadID != "" {
		return
	}

	values := rec.Values()
	lead := crm.Lead{
		Name:        strings.TrimSpace(rec.FirstName + " " + rec.LastName),
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		Email:       rec.Email,
		Phone:       rec.Phone,
		Description: leadDescription(rec, values),
	}
	if lead.Name == "" {
		lead.Name = "New referral"
	}

	leadID, err := s.crm.CreateLead(ctx, lead)
	event := models.SyncEvent{ReferralID: rec.ID, Target: "crm"}
	if err != nil {
		msg := syncerr.Truncate(err.Error(), 500)
		rec.CRMSyncStatus = models.SyncStatusFailed
		rec.CRMSyncError = &msg
		if updErr := s.store.UpdateCRMLink(ctx, rec.ID, map[string]any{
			"crm_sync_status": models.SyncStatusFailed,
			"crm_sync_error":  msg,
		}); updErr != nil {
			log.Printf("❌ [CRM] Failed to persist failure state for referral %s: %v", rec.ID, updErr)
		}
		log.Printf("❌ [CRM] Referral %s lead creation failed: %v", rec.ID, err)
		event.Status = models.SyncStatusFailed
		event.Error = syncerr.Truncate(err.Error(), 200)
		s.broker.Broadcast(sse.Event{Type: "sync.crm", Data: event})
		s.alertStaff(ctx, rec, "crm", err)
		return
	}

	now := time.Now()
	rec.CRMLeadID = &leadID
	rec.CRMSyncStatus = models.SyncStatusSuccess
	rec.CRMSyncError = nil
	rec.CRMSyncedAt = &now
	if updErr := s.store.UpdateCRMLink(ctx, rec.ID, map[string]any{
		"crm_lead_id":     leadID,
		"crm_sync_status": models.SyncStatusSuccess,
		"crm_sync_error":  nil,
		"crm_synced_at":   now,
	}); updErr != nil {
		log.Printf("⚠️ [CRM] Lead %s created but saving link state for referral %s failed: %v", leadID, rec.ID, updErr)
		return
	}
	log.Printf("✅ [CRM] Referral %s → lead %s", rec.ID, leadID)
	event.Status = models.SyncStatusSuccess
	event.ExternalID = leadID
	s.broker.Broadcast(sse.Event{Type: "sync.crm", Data: event})
}

// archiveSnapshot uploads the forensic copy of the submission once. Archive failures
// are logged and left for the next sync pass; they never fail the pipeline.
func (s *IntakeService) archiveSnapshot(ctx context.Context, rec *models.Referral) {
	if s.archive == nil {
		return
	}
	if rec.AuditURL != nil && *rec.AuditURL != "" {
		return
	}
	url, err := s.archive.ArchiveSubmission(ctx, rec.ID, string(rec.Kind), rec.Values(), rec.SubmittedAt)
	if err != nil {
		log.Printf("⚠️ [ARCHIVE] Failed to archive referral %s: %v", rec.ID, err)
		return
	}
	rec.AuditURL = &url
	if err := s.store.SetAuditURL(ctx, rec.ID, url); err != nil {
		log.Printf("⚠️ [ARCHIVE] Snapshot stored but saving URL for referral %s failed: %v", rec.ID, err)
		return
	}
	log.Printf("📦 [ARCHIVE] Referral %s snapshot archived", rec.ID)
}

// alertStaff notifies the on-call channel(s) after a sync leg exhausts its retries.
func (s *IntakeService) alertStaff(ctx context.Context, rec *models.Referral, target string, cause error) {
	s.emails.SendSyncFailedAlert(s.cfg.StaffAlertEmail, templates.SyncFailedData{
		ReferralID: rec.ID.String(),
		KindLabel:  boardsync.KindLabel(rec.Kind),
		Target:     target,
		Error:      syncerr.Truncate(cause.Error(), 300),
	})

	if s.fcm == nil {
		return
	}
	tokens, err := s.store.StaffDeviceTokens(ctx)
	if err != nil {
		log.Printf("⚠️ [ALERT] Failed to load staff device tokens: %v", err)
		return
	}
	if len(tokens) == 0 {
		return
	}
	title := "⚠️ Referral sync failed"
	body := fmt.Sprintf("%s sync for a %s referral needs attention", target, boardsync.KindLabel(rec.Kind))
	if err := s.fcm.SendStaffAlert(ctx, tokens, title, body, map[string]interface{}{
		"referral_id": rec.ID.String(),
		"target":      target,
	}); err != nil {
		log.Printf("⚠️ [ALERT] FCM staff alert failed: %v", err)
	}
}

// leadDescription summarizes the referral for the CRM lead record.
func leadDescription(rec *models.Referral, values map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s referral submitted %s", boardsync.KindLabel(rec.Kind), rec.SubmittedAt.Format("2006-01-02"))
	for _, slug := range []string{"conflict_overview", "support_needed"} {
		if text, _ := values[slug].(string); strings.TrimSpace(text) != "" {
			b.WriteString("\n\n")
			b.WriteString(strings.TrimSpace(text))
			break
		}
	}
	if rec.BoardItemURL != nil && *rec.BoardItemURL != "" {
		b.WriteString("\n\nBoard item: ")
		b.WriteString(*rec.BoardItemURL)
	}
	return b.String()
}

func stringValue(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return strings.TrimSpace(s)
}
