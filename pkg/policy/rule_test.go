package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGlobToRegex tests glob compilation and anchoring.
func TestGlobToRegex(t *testing.T) {
	rule := Rule{ID: "r", ScopeType: ScopeWorkspace, ResourcePattern: "calendar.*", Effect: EffectAllow}
	require.NoError(t, rule.Validate())

	assert.True(t, rule.MatchesPath("calendar.delete"))
	assert.True(t, rule.MatchesPath("calendar.events.list"))
	assert.False(t, rule.MatchesPath("mail.send"))
	assert.False(t, rule.MatchesPath("xcalendar.delete"), "pattern must match the full path, not a substring")
}

// TestGlob_QuestionMark tests single-character wildcards.
func TestGlob_QuestionMark(t *testing.T) {
	rule := Rule{ID: "r", ScopeType: ScopeWorkspace, ResourcePattern: "v?.deploy", Effect: EffectAllow}
	require.NoError(t, rule.Validate())

	assert.True(t, rule.MatchesPath("v1.deploy"))
	assert.False(t, rule.MatchesPath("v10.deploy"))
}

// TestMatchExact tests exact match mode ignores glob characters.
func TestMatchExact(t *testing.T) {
	rule := Rule{ID: "r", ScopeType: ScopeWorkspace, MatchType: MatchExact, ResourcePattern: "a.*", Effect: EffectAllow}
	require.NoError(t, rule.Validate())

	assert.True(t, rule.MatchesPath("a.*"))
	assert.False(t, rule.MatchesPath("a.b"))
}

// TestRuleValidate tests field validation.
func TestRuleValidate(t *testing.T) {
	assert.Error(t, (&Rule{ScopeType: ScopeWorkspace, ResourcePattern: "x", Effect: EffectAllow}).Validate(), "missing id")
	assert.Error(t, (&Rule{ID: "r", ScopeType: "team", ResourcePattern: "x", Effect: EffectAllow}).Validate(), "bad scope")
	assert.Error(t, (&Rule{ID: "r", ScopeType: ScopeWorkspace, ResourcePattern: "x", Effect: "maybe"}).Validate(), "bad effect")
	assert.Error(t, (&Rule{ID: "r", ScopeType: ScopeWorkspace, Effect: EffectAllow}).Validate(), "empty pattern")
	assert.NoError(t, (&Rule{ID: "r", ScopeType: ScopeWorkspace, ResourcePattern: "calendar.*", Effect: EffectAllow}).Validate())
}

// TestLiteralLength tests the specificity character count.
func TestLiteralLength(t *testing.T) {
	a := Rule{ResourcePattern: "calendar.*"}
	b := Rule{ResourcePattern: "calendar.delete"}
	assert.Greater(t, b.literalLength(), a.literalLength())
}
