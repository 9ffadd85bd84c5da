// internal/boardsync/catalog.go
package boardsync

import (
	"fmt"

	"intake-service/pkg/models"
)

// Scope groups catalog fields: shared fields appear on every referral kind, the others
// belong to exactly one form kind.
type Scope string

const (
	ScopeShared   Scope = "shared"
	ScopeConflict Scope = "conflict"
	ScopeGeneral  Scope = "general"
)

// ScopeForKind maps a referral kind onto its catalog scope.
func ScopeForKind(kind models.ReferralKind) Scope {
	switch kind {
	case models.ReferralKindConflict:
		return ScopeConflict
	case models.ReferralKindGeneral:
		return ScopeGeneral
	default:
		return ScopeGeneral
	}
}

// KindLabel is the display label used for board item names and dashboard filters.
func KindLabel(kind models.ReferralKind) string {
	switch kind {
	case models.ReferralKindConflict:
		return "Conflict Resolution"
	case models.ReferralKindGeneral:
		return "General Support"
	default:
		return "Referral"
	}
}

// ValueKind decides both the remote column type created during provisioning and the
// serialization the mapper applies.
type ValueKind string

const (
	KindText     ValueKind = "text"      // short text, whitespace collapsed
	KindLongText ValueKind = "long_text" // internal whitespace preserved
	KindDate     ValueKind = "date"      // UTC calendar date
	KindStatus   ValueKind = "status"    // single-select label
	KindDropdown ValueKind = "dropdown"  // multi-select labels
	KindPeople   ValueKind = "people"    // default assignee
	KindAudit    ValueKind = "audit"     // raw serialized submission, stored as long text
)

// FieldDefinition declares one logical field. Slug is the stable identifier used in
// form payloads and the schema registry; Title is the remote column title and doubles
// as the fallback lookup key, so it must be unique per board.
type FieldDefinition struct {
	Scope   Scope
	Slug    string
	Title   string
	Kind    ValueKind
	Options []string // default option set for status/dropdown columns
}

// MaxSecondaryContacts fixes how many repeated contact slots are pre-expanded into
// distinct columns. Keeping this a build-time constant keeps the remote schema size
// deterministic — the mapper pads missing slots instead of creating columns on the fly.
const MaxSecondaryContacts = 5

// SlugRawPayload is the audit column fed the full serialized record + metadata.
const SlugRawPayload = "raw_payload"

var sharedFields = []FieldDefinition{
	{Scope: ScopeShared, Slug: "first_name", Title: "First Name", Kind: KindText},
	{Scope: ScopeShared, Slug: "last_name", Title: "Last Name", Kind: KindText},
	{Scope: ScopeShared, Slug: "email", Title: "Email", Kind: KindText},
	{Scope: ScopeShared, Slug: "phone", Title: "Phone", Kind: KindText},
	{Scope: ScopeShared, Slug: "preferred_contact", Title: "Preferred Contact Method", Kind: KindStatus, Options: []string{"Phone", "Email", "Text"}},
	{Scope: ScopeShared, Slug: "street_address", Title: "Street Address", Kind: KindText},
	{Scope: ScopeShared, Slug: "city", Title: "City", Kind: KindText},
	{Scope: ScopeShared, Slug: "submitted_at", Title: "Submitted", Kind: KindDate},
	{Scope: ScopeShared, Slug: "reviewed", Title: "Reviewed", Kind: KindStatus, Options: []string{"Yes", "No"}},
	{Scope: ScopeShared, Slug: "reviewed_at", Title: "Reviewed On", Kind: KindDate},
	{Scope: ScopeShared, Slug: "submitted_by", Title: "Submitted By", Kind: KindText},
	{Scope: ScopeShared, Slug: "submission_type", Title: "Submission Type", Kind: KindStatus, Options: []string{"Web", "Phone", "Walk-in", "Staff"}},
	{Scope: ScopeShared, Slug: "case_owner", Title: "Case Owner", Kind: KindPeople},
	{Scope: ScopeShared, Slug: SlugRawPayload, Title: "Raw Submission", Kind: KindAudit},
}

var conflictFields = appendContactSlots([]FieldDefinition{
	{Scope: ScopeConflict, Slug: "conflict_overview", Title: "Conflict Overview", Kind: KindLongText},
	{Scope: ScopeConflict, Slug: "conflict_type", Title: "Conflict Type", Kind: KindDropdown, Options: []string{"Neighbor", "Family", "Landlord/Tenant", "Workplace", "Other"}},
	{Scope: ScopeConflict, Slug: "urgency", Title: "Urgency", Kind: KindStatus, Options: []string{"Low", "Medium", "High"}},
	{Scope: ScopeConflict, Slug: "other_party_name", Title: "Other Party Name", Kind: KindText},
	{Scope: ScopeConflict, Slug: "willing_to_mediate", Title: "Willing To Mediate", Kind: KindStatus, Options: []string{"Yes", "No"}},
})

var generalFields = []FieldDefinition{
	{Scope: ScopeGeneral, Slug: "support_needed", Title: "Support Needed", Kind: KindLongText},
	{Scope: ScopeGeneral, Slug: "program_interest", Title: "Program Interest", Kind: KindDropdown, Options: []string{"Food Assistance", "Housing", "Employment", "Youth Programs", "Seniors"}},
	{Scope: ScopeGeneral, Slug: "referral_source", Title: "How Did You Hear About Us", Kind: KindStatus, Options: []string{"Friend", "School", "Agency", "Online", "Other"}},
}

// contactSlotFields are the four child fields expanded per secondary-contact slot.
var contactSlotFields = []struct {
	suffix string
	title  string
}{
	{"name", "Name"},
	{"relationship", "Relationship"},
	{"phone", "Phone"},
	{"email", "Email"},
}

func appendContactSlots(defs []FieldDefinition) []FieldDefinition {
	for i := 1; i <= MaxSecondaryContacts; i++ {
		for _, child := range contactSlotFields {
			defs = append(defs, FieldDefinition{
				Scope: ScopeConflict,
				Slug:  fmt.Sprintf("contact_%d_%s", i, child.suffix),
				Title: fmt.Sprintf("Contact %d %s", i, child.title),
				Kind:  KindText,
			})
		}
	}
	return defs
}

// ContactSlotSlug returns the pre-expanded slug for one child field of one slot
// (1-based slot index).
func ContactSlotSlug(slot int, suffix string) string {
	return fmt.Sprintf("contact_%d_%s", slot, suffix)
}

// DefinitionsFor returns the effective field set for a scope: shared fields first, then
// scope-specific ones. Pure lookup, no side effects.
func DefinitionsFor(scope Scope) []FieldDefinition {
	defs := make([]FieldDefinition, 0, len(sharedFields)+len(conflictFields))
	defs = append(defs, sharedFields...)
	switch scope {
	case ScopeConflict:
		defs = append(defs, conflictFields...)
	case ScopeGeneral:
		defs = append(defs, generalFields...)
	}
	return defs
}

// Scopes lists every kind-specific scope the catalog knows.
func Scopes() []Scope {
	return []Scope{ScopeConflict, ScopeGeneral}
}

// ValidateCatalog checks the catalog invariants: within each effective field set
// (shared + one scope) slugs are unique, and titles are unique across the whole board
// since the provisioner falls back to title matching. Called once at startup.
func ValidateCatalog() error {
	titles := make(map[string]string)
	for _, def := range sharedFields {
		titles[def.Title] = def.Slug
	}
	for _, scope := range Scopes() {
		slugs := make(map[string]bool)
		for _, def := range DefinitionsFor(scope) {
			if slugs[def.Slug] {
				return fmt.Errorf("catalog: duplicate slug %q in scope %q", def.Slug, scope)
			}
			slugs[def.Slug] = true
			if other, ok := titles[def.Title]; ok && other != def.Slug {
				return fmt.Errorf("catalog: title %q shared by slugs %q and %q", def.Title, other, def.Slug)
			}
			titles[def.Title] = def.Slug
		}
	}
	return nil
}
