// internal/boardsync/mapper.go
package boardsync

import (
	"encoding/json"
	"strings"
	"time"
)

// SubmissionMetadata travels alongside the form values into the mapper. Owned by the
// submission flow; the sync engine only reads it.
type SubmissionMetadata struct {
	SubmittedAt    time.Time
	Reviewed       bool
	ReviewedAt     *time.Time
	SubmittedBy    string
	SubmissionType string
}

// ColumnIDMap is the per-sync result of provisioning: slug → remote column id, split by
// scope. Rebuilt on every sync, never persisted.
type ColumnIDMap struct {
	Shared   map[string]string
	Specific map[string]string
}

// Lookup resolves a slug against the specific map first, then shared.
func (m ColumnIDMap) Lookup(slug string) (string, bool) {
	if id, ok := m.Specific[slug]; ok {
		return id, true
	}
	id, ok := m.Shared[slug]
	return id, ok
}

// MapColumnValues turns validated form values plus submission metadata into a
// remote-column-id → typed-value map. Pure function, no I/O, and it never fails: any
// malformed or missing value degrades to "column omitted" so partial data cannot block
// the rest of the sync.
func MapColumnValues(values map[string]any, meta SubmissionMetadata, scope Scope, ids ColumnIDMap, defaultPersonID int64) map[string]ColumnValue {
	out := make(map[string]ColumnValue)
	contacts := contactList(values)

	for _, def := range DefinitionsFor(scope) {
		remoteID, ok := ids.Lookup(def.Slug)
		if !ok {
			continue
		}
		if v, ok := valueFor(def, values, meta, contacts, defaultPersonID); ok {
			out[remoteID] = v
		}
	}
	return out
}

func valueFor(def FieldDefinition, values map[string]any, meta SubmissionMetadata, contacts []map[string]any, defaultPersonID int64) (ColumnValue, bool) {
	// Metadata-backed slugs take their value from the submission envelope, not the form.
	switch def.Slug {
	case "submitted_at":
		return dateValue(meta.SubmittedAt)
	case "reviewed":
		if meta.Reviewed {
			return SelectValue{Label: "Yes"}, true
		}
		return SelectValue{Label: "No"}, true
	case "reviewed_at":
		if meta.ReviewedAt == nil {
			return nil, false
		}
		return dateValue(*meta.ReviewedAt)
	case "submitted_by":
		return textValue(meta.SubmittedBy)
	case "submission_type":
		return selectValue(meta.SubmissionType)
	case "case_owner":
		if defaultPersonID <= 0 {
			return nil, false
		}
		return AssigneeValue{PersonID: defaultPersonID}, true
	case SlugRawPayload:
		return auditValue(values, meta)
	}

	// Pre-expanded secondary-contact slots: indices beyond the actual data leave the
	// column unset entirely so the remote shows blanks, not cleared values.
	if slot, suffix, ok := parseContactSlug(def.Slug); ok {
		if slot > len(contacts) {
			return nil, false
		}
		return textValue(asString(contacts[slot-1][suffix]))
	}

	raw, ok := values[def.Slug]
	if !ok || raw == nil {
		return nil, false
	}

	switch def.Kind {
	case KindText:
		return textValue(asString(raw))
	case KindLongText:
		return longTextValue(asString(raw))
	case KindDate:
		return dateValue(raw)
	case KindStatus:
		return selectValue(asString(raw))
	case KindDropdown:
		return multiSelectValue(raw)
	default:
		return nil, false
	}
}

// textValue trims and collapses internal whitespace; empty after trim means omit.
func textValue(s string) (ColumnValue, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return nil, false
	}
	return TextValue{Text: s}, true
}

// longTextValue trims only the ends — internal whitespace and newlines survive.
func longTextValue(s string) (ColumnValue, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	return LongTextValue{Text: s}, true
}

func selectValue(s string) (ColumnValue, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	// The label is taken verbatim from domain data; drift against the remote option set
	// is repaired downstream by the client.
	return SelectValue{Label: s}, true
}

func multiSelectValue(raw any) (ColumnValue, bool) {
	var labels []string
	switch v := raw.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			labels = []string{s}
		}
	case []string:
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				labels = append(labels, s)
			}
		}
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(asString(item)); s != "" {
				labels = append(labels, s)
			}
		}
	}
	if len(labels) == 0 {
		return nil, false
	}
	return MultiSelectValue{Labels: labels}, true
}

// dateValue normalizes a time.Time, an ISO string, or a {seconds, nanoseconds} epoch
// pair to a single UTC calendar date. Parse failure means omit, never an error.
func dateValue(raw any) (ColumnValue, bool) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return nil, false
		}
		return DateValue{Date: v.UTC().Format("2006-01-02")}, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, false
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return DateValue{Date: t.UTC().Format("2006-01-02")}, true
			}
		}
		return nil, false
	case map[string]any:
		// Document-store timestamp shape: {seconds, nanoseconds}
		secs, ok := asInt64(v["seconds"])
		if !ok {
			return nil, false
		}
		return DateValue{Date: time.Unix(secs, 0).UTC().Format("2006-01-02")}, true
	default:
		return nil, false
	}
}

// auditValue serializes the full record plus metadata as a structured blob for later
// forensic reconciliation.
func auditValue(values map[string]any, meta SubmissionMetadata) (ColumnValue, bool) {
	blob := map[string]any{
		"values": values,
		"metadata": map[string]any{
			"submitted_at":    meta.SubmittedAt.UTC().Format(time.RFC3339),
			"reviewed":        meta.Reviewed,
			"submitted_by":    meta.SubmittedBy,
			"submission_type": meta.SubmissionType,
		},
	}
	if meta.ReviewedAt != nil {
		blob["metadata"].(map[string]any)["reviewed_at"] = meta.ReviewedAt.UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return nil, false
	}
	return AuditValue{JSON: string(raw)}, true
}

// contactList pulls the secondary_contacts array out of the form values, tolerating any
// malformed shape by returning fewer (or zero) contacts.
func contactList(values map[string]any) []map[string]any {
	raw, ok := values["secondary_contacts"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	contacts := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			contacts = append(contacts, m)
		}
	}
	if len(contacts) > MaxSecondaryContacts {
		contacts = contacts[:MaxSecondaryContacts]
	}
	return contacts
}

// parseContactSlug recognizes the pre-expanded contact_<n>_<suffix> slugs and returns
// the 1-based slot plus child suffix.
func parseContactSlug(slug string) (int, string, bool) {
	if !strings.HasPrefix(slug, "contact_") {
		return 0, "", false
	}
	rest := strings.TrimPrefix(slug, "contact_")
	sep := strings.IndexByte(rest, '_')
	if sep <= 0 {
		return 0, "", false
	}
	slot := 0
	for _, r := range rest[:sep] {
		if r < '0' || r > '9' {
			return 0, "", false
		}
		slot = slot*10 + int(r-'0')
	}
	if slot < 1 || slot > MaxSecondaryContacts {
		return 0, "", false
	}
	return slot, rest[sep+1:], true
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(raw), `"`)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
