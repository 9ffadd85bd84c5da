package boardsync

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-service/pkg/models"
)

func TestValidateCatalog(t *testing.T) {
	require.NoError(t, ValidateCatalog())
}

func TestDefinitionsForSharedFieldsFirst(t *testing.T) {
	for _, scope := range Scopes() {
		defs := DefinitionsFor(scope)
		require.NotEmpty(t, defs)

		for i, def := range defs[:len(sharedFields)] {
			assert.Equal(t, ScopeShared, def.Scope, "position %d in scope %s", i, scope)
		}
		for _, def := range defs[len(sharedFields):] {
			assert.Equal(t, scope, def.Scope)
		}
	}
}

func TestConflictScopeExpandsContactSlots(t *testing.T) {
	defs := DefinitionsFor(ScopeConflict)

	slots := 0
	for _, def := range defs {
		if strings.HasPrefix(def.Slug, "contact_") {
			slots++
			assert.Equal(t, KindText, def.Kind, "slug %s", def.Slug)
		}
	}
	// MaxSecondaryContacts slots × name/relationship/phone/email
	assert.Equal(t, MaxSecondaryContacts*4, slots)

	assert.Equal(t, "contact_3_phone", ContactSlotSlug(3, "phone"))
}

func TestGeneralScopeHasNoContactSlots(t *testing.T) {
	for _, def := range DefinitionsFor(ScopeGeneral) {
		assert.False(t, strings.HasPrefix(def.Slug, "contact_"), "slug %s", def.Slug)
	}
}

func TestScopeForKind(t *testing.T) {
	assert.Equal(t, ScopeConflict, ScopeForKind(models.ReferralKindConflict))
	assert.Equal(t, ScopeGeneral, ScopeForKind(models.ReferralKindGeneral))
	assert.Equal(t, ScopeGeneral, ScopeForKind(models.ReferralKind("unknown")))
}

func TestKindLabel(t *testing.T) {
	assert.Equal(t, "Conflict Resolution", KindLabel(models.ReferralKindConflict))
	assert.Equal(t, "General Support", KindLabel(models.ReferralKindGeneral))
	assert.Equal(t, "Referral", KindLabel(models.ReferralKind("unknown")))
}

func TestRawPayloadFieldIsShared(t *testing.T) {
	found := false
	for _, def := range sharedFields {
		if def.Slug == SlugRawPayload {
			found = true
			assert.Equal(t, KindAudit, def.Kind)
		}
	}
	assert.True(t, found)
}
