// internal/boardsync/values.go
package boardsync

import (
	"encoding/json"
	"fmt"
)

// ColumnValue is the typed value the mapper emits per remote column. Only the client
// layer flattens these into the board API's wire JSON shapes, so the mapper stays free
// of remote-format knowledge.
type ColumnValue interface {
	wire() any
}

type TextValue struct {
	Text string
}

type LongTextValue struct {
	Text string
}

type DateValue struct {
	Date string // YYYY-MM-DD, already UTC-normalized
}

type SelectValue struct {
	Label string
}

type MultiSelectValue struct {
	Labels []string
}

type AssigneeValue struct {
	PersonID int64
}

// AuditValue carries the full serialized submission for the raw-payload column.
type AuditValue struct {
	JSON string
}

func (v TextValue) wire() any     { return v.Text }
func (v LongTextValue) wire() any { return map[string]any{"text": v.Text} }
func (v DateValue) wire() any     { return map[string]any{"date": v.Date} }
func (v SelectValue) wire() any   { return map[string]any{"label": v.Label} }
func (v MultiSelectValue) wire() any {
	return map[string]any{"labels": v.Labels}
}
func (v AssigneeValue) wire() any {
	return map[string]any{
		"personsAndTeams": []map[string]any{{"id": v.PersonID, "kind": "person"}},
	}
}
func (v AuditValue) wire() any { return map[string]any{"text": v.JSON} }

// isSelect reports whether a value is option-constrained — these are the ones stripped
// during a schema-drift repair pass.
func isSelect(v ColumnValue) bool {
	switch v.(type) {
	case SelectValue, MultiSelectValue:
		return true
	default:
		return false
	}
}

// encodeColumnValues flattens a typed value map into the column_values JSON string the
// board API expects.
func encodeColumnValues(values map[string]ColumnValue) (string, error) {
	wire := make(map[string]any, len(values))
	for id, v := range values {
		wire[id] = v.wire()
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encode column values: %w", err)
	}
	return string(raw), nil
}

// stripSelectValues returns a copy of values without any option-constrained entries.
func stripSelectValues(values map[string]ColumnValue) map[string]ColumnValue {
	stripped := make(map[string]ColumnValue, len(values))
	for id, v := range values {
		if isSelect(v) {
			continue
		}
		stripped[id] = v
	}
	return stripped
}

// columnTypeFor maps a catalog value kind onto the remote column type created during
// provisioning.
func columnTypeFor(kind ValueKind) string {
	switch kind {
	case KindText:
		return "text"
	case KindLongText, KindAudit:
		return "long_text"
	case KindDate:
		return "date"
	case KindStatus:
		return "status"
	case KindDropdown:
		return "dropdown"
	case KindPeople:
		return "people"
	default:
		return "text"
	}
}
