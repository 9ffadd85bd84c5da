package boardsync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idsForScope builds a ColumnIDMap where every catalog slug resolves to "col_<slug>".
func idsForScope(scope Scope) ColumnIDMap {
	ids := ColumnIDMap{Shared: make(map[string]string), Specific: make(map[string]string)}
	for _, def := range DefinitionsFor(scope) {
		if def.Scope == ScopeShared {
			ids.Shared[def.Slug] = "col_" + def.Slug
		} else {
			ids.Specific[def.Slug] = "col_" + def.Slug
		}
	}
	return ids
}

func testMeta() SubmissionMetadata {
	return SubmissionMetadata{
		SubmittedAt:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		SubmittedBy:    "front desk",
		SubmissionType: "Web",
	}
}

func TestMapColumnValuesBasicFields(t *testing.T) {
	values := map[string]any{
		"first_name":        "  Alex ",
		"last_name":         "Rivera",
		"preferred_contact": "Email",
		"conflict_overview": "  neighbor dispute over fence line\nongoing for months  ",
		"conflict_type":     []any{"Neighbor", "Other"},
	}
	out := MapColumnValues(values, testMeta(), ScopeConflict, idsForScope(ScopeConflict), 0)

	assert.Equal(t, TextValue{Text: "Alex"}, out["col_first_name"])
	assert.Equal(t, SelectValue{Label: "Email"}, out["col_preferred_contact"])
	// Long text keeps internal whitespace, trims ends only.
	assert.Equal(t, LongTextValue{Text: "neighbor dispute over fence line\nongoing for months"}, out["col_conflict_overview"])
	assert.Equal(t, MultiSelectValue{Labels: []string{"Neighbor", "Other"}}, out["col_conflict_type"])
}

func TestMapColumnValuesMissingAndEmptyOmitted(t *testing.T) {
	values := map[string]any{
		"first_name": "   ",
		"urgency":    nil,
	}
	out := MapColumnValues(values, testMeta(), ScopeConflict, idsForScope(ScopeConflict), 0)

	_, hasFirst := out["col_first_name"]
	assert.False(t, hasFirst, "blank text should omit the column")
	_, hasUrgency := out["col_urgency"]
	assert.False(t, hasUrgency)
	_, hasOther := out["col_other_party_name"]
	assert.False(t, hasOther)
}

func TestMapColumnValuesMetadata(t *testing.T) {
	meta := testMeta()
	reviewedAt := time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)
	meta.Reviewed = true
	meta.ReviewedAt = &reviewedAt

	out := MapColumnValues(map[string]any{}, meta, ScopeGeneral, idsForScope(ScopeGeneral), 42)

	assert.Equal(t, DateValue{Date: "2026-03-14"}, out["col_submitted_at"])
	assert.Equal(t, SelectValue{Label: "Yes"}, out["col_reviewed"])
	assert.Equal(t, DateValue{Date: "2026-03-15"}, out["col_reviewed_at"])
	assert.Equal(t, TextValue{Text: "front desk"}, out["col_submitted_by"])
	assert.Equal(t, SelectValue{Label: "Web"}, out["col_submission_type"])
	assert.Equal(t, AssigneeValue{PersonID: 42}, out["col_case_owner"])
}

func TestMapColumnValuesUnreviewedAndNoAssignee(t *testing.T) {
	out := MapColumnValues(map[string]any{}, testMeta(), ScopeGeneral, idsForScope(ScopeGeneral), 0)

	assert.Equal(t, SelectValue{Label: "No"}, out["col_reviewed"])
	_, hasReviewedAt := out["col_reviewed_at"]
	assert.False(t, hasReviewedAt)
	_, hasOwner := out["col_case_owner"]
	assert.False(t, hasOwner, "no default person configured means no assignee column")
}

func TestMapColumnValuesContactSlots(t *testing.T) {
	values := map[string]any{
		"secondary_contacts": []any{
			map[string]any{"name": "Sam Lee", "relationship": "Neighbor", "phone": "555-0101"},
			map[string]any{"name": "Pat Kim", "email": "pat@example.org"},
		},
	}
	out := MapColumnValues(values, testMeta(), ScopeConflict, idsForScope(ScopeConflict), 0)

	assert.Equal(t, TextValue{Text: "Sam Lee"}, out["col_contact_1_name"])
	assert.Equal(t, TextValue{Text: "555-0101"}, out["col_contact_1_phone"])
	assert.Equal(t, TextValue{Text: "Pat Kim"}, out["col_contact_2_name"])
	assert.Equal(t, TextValue{Text: "pat@example.org"}, out["col_contact_2_email"])

	// Two contacts supplied: slots 3–5 stay entirely absent, not cleared.
	for slot := 3; slot <= MaxSecondaryContacts; slot++ {
		_, ok := out["col_"+ContactSlotSlug(slot, "name")]
		assert.False(t, ok, "slot %d should be absent", slot)
	}
	// Missing child field within a present contact is also absent.
	_, ok := out["col_contact_2_phone"]
	assert.False(t, ok)
}

func TestMapColumnValuesContactOverflowCapped(t *testing.T) {
	var contacts []any
	for i := 0; i < MaxSecondaryContacts+3; i++ {
		contacts = append(contacts, map[string]any{"name": "Contact"})
	}
	out := MapColumnValues(map[string]any{"secondary_contacts": contacts}, testMeta(), ScopeConflict, idsForScope(ScopeConflict), 0)

	for slot := 1; slot <= MaxSecondaryContacts; slot++ {
		_, ok := out["col_"+ContactSlotSlug(slot, "name")]
		assert.True(t, ok, "slot %d", slot)
	}
}

func TestDateValueShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want string
		ok   bool
	}{
		{"time.Time", time.Date(2026, 1, 2, 23, 59, 0, 0, time.UTC), "2026-01-02", true},
		{"RFC3339", "2026-01-02T15:04:05Z", "2026-01-02", true},
		{"date only", "2026-01-02", "2026-01-02", true},
		{"no zone", "2026-01-02T15:04:05", "2026-01-02", true},
		{"epoch pair", map[string]any{"seconds": float64(1767312000), "nanoseconds": float64(0)}, "2026-01-02", true},
		{"garbage", "not a date", "", false},
		{"zero time", time.Time{}, "", false},
		{"wrong type", 12345, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := dateValue(tc.raw)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, DateValue{Date: tc.want}, v)
			}
		})
	}
}

func TestAuditValueCarriesFullSubmission(t *testing.T) {
	values := map[string]any{"first_name": "Alex", "urgency": "High"}
	out := MapColumnValues(values, testMeta(), ScopeConflict, idsForScope(ScopeConflict), 0)

	audit, ok := out["col_raw_payload"].(AuditValue)
	require.True(t, ok)

	var blob map[string]any
	require.NoError(t, json.Unmarshal([]byte(audit.JSON), &blob))
	assert.Equal(t, "Alex", blob["values"].(map[string]any)["first_name"])
	meta := blob["metadata"].(map[string]any)
	assert.Equal(t, "front desk", meta["submitted_by"])
	assert.Equal(t, "Web", meta["submission_type"])
	assert.Equal(t, false, meta["reviewed"])
}

func TestMapColumnValuesSkipsUnprovisionedColumns(t *testing.T) {
	ids := ColumnIDMap{Shared: map[string]string{"first_name": "col_first_name"}, Specific: map[string]string{}}
	out := MapColumnValues(map[string]any{"first_name": "Alex", "last_name": "Rivera"}, testMeta(), ScopeGeneral, ids, 0)

	assert.Len(t, out, 1)
	assert.Equal(t, TextValue{Text: "Alex"}, out["col_first_name"])
}

func TestEncodeColumnValuesWireShapes(t *testing.T) {
	encoded, err := encodeColumnValues(map[string]ColumnValue{
		"t": TextValue{Text: "hi"},
		"l": LongTextValue{Text: "body"},
		"d": DateValue{Date: "2026-01-02"},
		"s": SelectValue{Label: "High"},
		"m": MultiSelectValue{Labels: []string{"A", "B"}},
		"p": AssigneeValue{PersonID: 7},
	})
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal([]byte(encoded), &wire))
	assert.Equal(t, "hi", wire["t"])
	assert.Equal(t, map[string]any{"text": "body"}, wire["l"])
	assert.Equal(t, map[string]any{"date": "2026-01-02"}, wire["d"])
	assert.Equal(t, map[string]any{"label": "High"}, wire["s"])
	assert.Equal(t, map[string]any{"labels": []any{"A", "B"}}, wire["m"])
	persons := wire["p"].(map[string]any)["personsAndTeams"].([]any)
	require.Len(t, persons, 1)
	assert.Equal(t, "person", persons[0].(map[string]any)["kind"])
}

func TestStripSelectValues(t *testing.T) {
	values := map[string]ColumnValue{
		"a": TextValue{Text: "keep"},
		"b": SelectValue{Label: "drop"},
		"c": MultiSelectValue{Labels: []string{"drop"}},
		"d": DateValue{Date: "2026-01-02"},
	}
	stripped := stripSelectValues(values)

	assert.Len(t, stripped, 2)
	assert.Contains(t, stripped, "a")
	assert.Contains(t, stripped, "d")
}
