// intake-service/internal/email/templates/referral_received.go
package templates

import (
	"html/template"
	"strings"
	"time"
)

var referralReceivedTmpl = template.Must(template.New("referral_received").Parse(referralReceivedHTML))

type ReferralReceivedData struct {
	FirstName   string
	KindLabel   string // e.g., "Conflict Resolution"
	SubmittedAt string
	Year        int
}

func RenderReferralReceivedEmail(data ReferralReceivedData) (string, error) {
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}
	if data.FirstName == "" {
		data.FirstName = "there"
	}
	var buf strings.Builder
	err := referralReceivedTmpl.Execute(&buf, data)
	return buf.String(), err
}
