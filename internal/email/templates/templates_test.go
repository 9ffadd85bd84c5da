package templates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReferralReceivedEmail(t *testing.T) {
	body, err := RenderReferralReceivedEmail(ReferralReceivedData{
		FirstName:   "Alex",
		KindLabel:   "Conflict Resolution",
		SubmittedAt: "March 14, 2026 at 9:30 AM UTC",
	})
	require.NoError(t, err)

	assert.Contains(t, body, "Hi Alex,")
	assert.Contains(t, body, "Conflict Resolution")
	assert.Contains(t, body, "March 14, 2026")
}

func TestRenderReferralReceivedDefaults(t *testing.T) {
	body, err := RenderReferralReceivedEmail(ReferralReceivedData{KindLabel: "General Support"})
	require.NoError(t, err)

	assert.Contains(t, body, "Hi there,")
	assert.Contains(t, body, time.Now().Format("2006"))
}

func TestRenderSyncFailedEmail(t *testing.T) {
	body, err := RenderSyncFailedEmail(SyncFailedData{
		ReferralID: "0c9a1c2e-0000-0000-0000-000000000000",
		KindLabel:  "General Support",
		Target:     "board",
		Error:      "board API returned 500",
	})
	require.NoError(t, err)

	assert.Contains(t, body, "0c9a1c2e")
	assert.Contains(t, body, "board API returned 500")
	assert.Contains(t, body, "board")
}
