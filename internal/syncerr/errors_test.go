package syncerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(New(KindTransient, "board.create_item", "rate limited")))
	assert.Equal(t, KindSchemaDrift, KindOf(New(KindSchemaDrift, "board.update_item", "label missing")))

	// Foreign errors classify as remote rejection so nothing ever retries them.
	assert.Equal(t, KindRemoteRejection, KindOf(errors.New("plain")))
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	inner := New(KindTransient, "crm.create_lead", "connection reset")
	wrapped := fmt.Errorf("sync referral: %w", inner)

	assert.Equal(t, KindTransient, KindOf(wrapped))
	assert.True(t, IsTransient(wrapped))
}

func TestRetryAfterOf(t *testing.T) {
	se := New(KindTransient, "board.create_item", "rate limited")
	se.RetryAfter = 7 * time.Second

	assert.Equal(t, 7*time.Second, RetryAfterOf(se))
	assert.Equal(t, time.Duration(0), RetryAfterOf(errors.New("plain")))
}

func TestErrorStringIncludesStatus(t *testing.T) {
	se := New(KindRemoteRejection, "crm.create_lead", "bad request")
	se.StatusCode = 422

	msg := se.Error()
	assert.Contains(t, msg, "crm.create_lead")
	assert.Contains(t, msg, "422")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 500))

	long := strings.Repeat("x", 600)
	got := Truncate(long, 500)
	assert.Len(t, []rune(got), 501)
	assert.True(t, strings.HasSuffix(got, "…"))
}
