// internal/transport/http/referrals.go
package http

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"intake-service/internal/intake"
	"intake-service/internal/service"
	"intake-service/internal/sse"
	"intake-service/internal/syncerr"
	"intake-service/pkg/models"
)

type ReferralHandler struct {
	intakeService *service.IntakeService
	broker        *sse.Broker
}

func NewReferralHandler(intakeService *service.IntakeService, broker *sse.Broker) *ReferralHandler {
	return &ReferralHandler{intakeService: intakeService, broker: broker}
}

// Submit accepts a new referral from the public intake form. The sync to the board and
// CRM happens in the background; the caller gets the persisted record immediately.
func (h *ReferralHandler) Submit(c *fiber.Ctx) error {
	var req models.ReferralRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	rec, err := h.intakeService.SubmitReferral(c.Context(), &req)
	if err != nil {
		if syncerr.KindOf(err) == syncerr.KindValidation {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("❌ Submit referral failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save referral"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":           rec.ID,
		"kind":         rec.Kind,
		"submitted_at": rec.SubmittedAt,
	})
}

// List returns a page of referrals for the staff dashboard, filterable by kind and
// board sync status.
func (h *ReferralHandler) List(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	recs, total, err := h.intakeService.ListReferrals(c.Context(), c.Query("kind"), c.Query("status"), limit, offset)
	if err != nil {
		log.Printf("❌ List referrals failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch referrals"})
	}

	return c.JSON(fiber.Map{
		"referrals": recs,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

func (h *ReferralHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid referral id"})
	}

	rec, err := h.intakeService.GetReferral(c.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "referral not found"})
		}
		log.Printf("❌ Get referral %s failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch referral"})
	}
	return c.JSON(rec)
}

// Resync re-drives the outbound sync for one referral on staff request.
func (h *ReferralHandler) Resync(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid referral id"})
	}

	rec, err := h.intakeService.ResyncReferral(c.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "referral not found"})
		}
		log.Printf("❌ Resync referral %s failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to resync referral"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":      "queued",
		"referral_id": rec.ID,
	})
}

// Backfill re-drives every referral whose sync failed or never ran.
func (h *ReferralHandler) Backfill(c *fiber.Ctx) error {
	count, err := h.intakeService.Backfill(c.Context())
	if err != nil {
		log.Printf("❌ Backfill failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "backfill failed"})
	}

	lastRun, _ := h.intakeService.LastBackfillRun(c.Context())
	return c.JSON(fiber.Map{
		"status":    "completed",
		"re_synced": count,
		"last_run":  lastRun,
	})
}

// RegisterDevice registers a staff device for push alerts.
func (h *ReferralHandler) RegisterDevice(c *fiber.Ctx) error {
	var req struct {
		Label    string `json:"label"`
		FCMToken string `json:"fcm_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.FCMToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "fcm_token required"})
	}

	dev, err := h.intakeService.RegisterStaffDevice(c.Context(), req.Label, req.FCMToken)
	if err != nil {
		log.Printf("❌ Register staff device failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to register device"})
	}
	return c.Status(fiber.StatusCreated).JSON(dev)
}

// ListFormKinds exposes the enabled referral form kinds to the public intake form.
func (h *ReferralHandler) ListFormKinds(c *fiber.Ctx) error {
	db := intake.GetDB()
	var kinds []models.FormKind
	if err := db.WithContext(c.Context()).Where("enabled = ?", true).Order("key ASC").Find(&kinds).Error; err != nil {
		log.Printf("❌ List form kinds failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch form kinds"})
	}
	return c.JSON(fiber.Map{"kinds": kinds})
}

// StreamSyncStatus streams sync events to the staff dashboard over SSE.
func (h *ReferralHandler) StreamSyncStatus(c *fiber.Ctx) error {
	connStart := time.Now()
	log.Printf("✅ [SSE] 🟢 Sync-status stream STARTED from %s at %s", c.IP(), connStart.Format(time.RFC3339Nano))

	// SSE headers must be set BEFORE SetBodyStreamWriter
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")
	c.Set("Transfer-Encoding", "chunked")

	origin := c.Get("Origin")
	if origin != "" {
		c.Set("Access-Control-Allow-Origin", origin)
		c.Set("Access-Control-Allow-Credentials", "true")
	}

	clientChan := make(chan sse.Event, 10)
	h.broker.Register(clientChan)

	// Cleanup happens inside the stream writer: fasthttp runs it after this handler
	// returns, so a handler-level defer would tear the client down too early.
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			h.broker.Unregister(clientChan)
			log.Printf("🔌 [SSE] 🔴 Sync-status stream CLOSED after %v", time.Since(connStart))
		}()

		flusher, ok := any(w).(interface{ Flush() error })
		if !ok {
			log.Printf("⚠️ [SSE] Writer doesn't support Flush()")
			return
		}

		readyPayload := map[string]interface{}{
			"status":  "ready",
			"at":      time.Now().Format(time.RFC3339Nano),
			"message": "SSE connection established successfully",
		}
		readyJSON, _ := json.Marshal(readyPayload)
		if _, err := w.Write([]byte(fmt.Sprintf("event: ready\ndata: %s\n\n", readyJSON))); err != nil {
			log.Printf("⚠️ [SSE] Failed to write ready event: %v", err)
			return
		}
		if err := flusher.Flush(); err != nil {
			log.Printf("⚠️ [SSE] Failed to flush ready event: %v", err)
			return
		}

		done := c.Context().Done()
		heartbeat := time.NewTicker(30 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case <-done:
				log.Printf("🔌 [SSE] Context done for sync-status stream")
				return

			case event, open := <-clientChan:
				if !open {
					return
				}
				if event.Data == nil {
					continue
				}

				eventJSON, err := json.Marshal(event.Data)
				if err != nil {
					log.Printf("⚠️ [SSE] Failed to marshal event data: %v", err)
					continue
				}

				message := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, eventJSON)
				if _, err := w.Write([]byte(message)); err != nil {
					log.Printf("⚠️ [SSE] Write error: %v", err)
					return
				}
				if err := flusher.Flush(); err != nil {
					log.Printf("⚠️ [SSE] Flush error: %v", err)
					return
				}

			case <-heartbeat.C:
				// Heartbeat as comment, not an event
				if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
					log.Printf("⚠️ [SSE] Failed to write heartbeat: %v", err)
					return
				}
				if err := flusher.Flush(); err != nil {
					log.Printf("⚠️ [SSE] Failed to flush heartbeat: %v", err)
					return
				}
			}
		}
	})

	return nil
}
