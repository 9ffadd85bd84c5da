// internal/email/sender.go
package email

import (
	"context"
	"fmt"
	"log"
	"time"

	"intake-service/internal/config"
	"intake-service/internal/email/templates"

	"gopkg.in/gomail.v2"
)

type Sender struct {
	cfg *config.Config
}

func NewSender(cfg *config.Config) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	log.Printf("📧 [SEND] To: %s | Subject: %s", to, subject)

	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", s.cfg.SMTPFromName, s.cfg.SMTPFrom))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	dialer := gomail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)

	// Exponential backoff: 1s, 2s, 4s → max 3 retries
	for attempt := 0; attempt < 3; attempt++ {
		if err := dialer.DialAndSend(m); err != nil {
			delay := time.Duration(1<<attempt) * time.Second // 1s, 2s, 4s
			log.Printf("❌ [ATTEMPT %d] Failed to send email to %s: %v → retrying in %v", attempt+1, to, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("email send cancelled: %w", ctx.Err())
			}
			continue
		}
		log.Printf("✅ [SUCCESS] Email sent to %s (Subject: %s)", to, subject)
		return nil
	}

	log.Printf("💥 [FAILED] All retries exhausted for %s", to)
	return fmt.Errorf("failed to send email to %s after 3 attempts", to)
}

// SendReferralReceived confirms receipt to the person who submitted the referral.
// Delivery runs in the background; submission flow never waits on SMTP.
func (s *Sender) SendReferralReceived(to string, data templates.ReferralReceivedData) {
	if to == "" {
		return
	}
	body, err := templates.RenderReferralReceivedEmail(data)
	if err != nil {
		log.Printf("❌ [EMAIL] referral_received: render failed: %v", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if sendErr := s.Send(ctx, to, "We received your referral", body); sendErr != nil {
			log.Printf("⚠️ [EMAIL] Background referral_received email failed for %s: %v", to, sendErr)
		}
	}()
}

// SendSyncFailedAlert notifies staff that a referral exhausted its sync retries and
// needs manual attention.
func (s *Sender) SendSyncFailedAlert(to string, data templates.SyncFailedData) {
	if to == "" {
		return
	}
	body, err := templates.RenderSyncFailedEmail(data)
	if err != nil {
		log.Printf("❌ [EMAIL] sync_failed: render failed: %v", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		subject := fmt.Sprintf("⚠️ Referral sync failed: %s", data.ReferralID)
		if sendErr := s.Send(ctx, to, subject, body); sendErr != nil {
			log.Printf("⚠️ [EMAIL] Background sync_failed alert failed for %s: %v", to, sendErr)
		}
	}()
}
