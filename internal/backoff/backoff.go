// internal/backoff/backoff.go
package backoff

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Policy is a bounded exponential backoff schedule shared by every outbound client
// (board API, CRM API, SMTP). Delay for attempt n is min(Initial × Multiplier^n, Max).
type Policy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Default mirrors the schedule the external APIs tolerate well: 3 retries, 1s → 2s → 4s,
// capped at 10s.
func Default() Policy {
	return Policy{
		MaxRetries: 3,
		Initial:    1 * time.Second,
		Max:        10 * time.Second,
		Multiplier: 2,
	}
}

// Delay returns the sleep before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	d := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep cancelled: %w", ctx.Err())
	}
}
