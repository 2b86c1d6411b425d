package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextCopyOnWrite(t *testing.T) {
	base := NewContext()
	updated := base.WithRules(Allow, SourceSession, "Bash(python3:*)")

	// The original snapshot is untouched.
	assert.Empty(t, base.Rules(Allow, SourceSession))
	assert.Equal(t, []string{"Bash(python3:*)"}, updated.Rules(Allow, SourceSession))

	modeChanged := updated.WithMode(ModePlan)
	assert.Equal(t, ModeDefault, updated.Mode)
	assert.Equal(t, ModePlan, modeChanged.Mode)
	// Rules carry over through unrelated updates.
	assert.Equal(t, []string{"Bash(python3:*)"}, modeChanged.Rules(Allow, SourceSession))
}

func TestContextDeduplicatesWithinSource(t *testing.T) {
	pctx := NewContext().
		WithRules(Allow, SourceSession, "Bash", "Bash", "Read").
		WithRules(Allow, SourceSession, "Bash")

	assert.Equal(t, []string{"Bash", "Read"}, pctx.Rules(Allow, SourceSession))
}

func TestContextPolicySettingsImmutable(t *testing.T) {
	pctx := NewContext().WithRules(Deny, SourcePolicySettings, "Bash(rm:*)")

	// Users may add more policy rules.
	pctx = pctx.WithRules(Deny, SourcePolicySettings, "Bash(sudo:*)")
	assert.Len(t, pctx.Rules(Deny, SourcePolicySettings), 2)

	// But never remove them.
	_, err := pctx.WithoutRules(Deny, SourcePolicySettings, "Bash(rm:*)")
	require.ErrorIs(t, err, ErrPolicyImmutable)
	assert.Len(t, pctx.Rules(Deny, SourcePolicySettings), 2)
}

func TestContextWithoutRules(t *testing.T) {
	pctx := NewContext().WithRules(Allow, SourceUserSettings, "Bash", "Read", "Glob")

	out, err := pctx.WithoutRules(Allow, SourceUserSettings, "Read")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bash", "Glob"}, out.Rules(Allow, SourceUserSettings))
	// Snapshot semantics: the input context keeps all three.
	assert.Len(t, pctx.Rules(Allow, SourceUserSettings), 3)
}

func TestContextWithDirectory(t *testing.T) {
	pctx := NewContext().WithDirectory("/srv/data", SourceSession)
	dir, ok := pctx.AdditionalDirectories["/srv/data"]
	require.True(t, ok)
	assert.Equal(t, SourceSession, dir.Source)

	// Unique by path: re-adding replaces the grant.
	pctx = pctx.WithDirectory("/srv/data", SourceUserSettings)
	assert.Len(t, pctx.AdditionalDirectories, 1)
	assert.Equal(t, SourceUserSettings, pctx.AdditionalDirectories["/srv/data"].Source)
}
