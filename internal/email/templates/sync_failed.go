// intake-service/internal/email/templates/sync_failed.go
package templates

import (
	"html/template"
	"strings"
	"time"
)

var syncFailedTmpl = template.Must(template.New("sync_failed").Parse(syncFailedHTML))

type SyncFailedData struct {
	ReferralID string
	KindLabel  string
	Target     string // "board" or "crm"
	Error      string
	Year       int
}

func RenderSyncFailedEmail(data SyncFailedData) (string, error) {
	if data.Year == 0 {
		data.Year = time.Now().Year()
	}
	var buf strings.Builder
	err := syncFailedTmpl.Execute(&buf, data)
	return buf.String(), err
}
