package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegate-ai/codegate/internal/event"
	"github.com/codegate-ai/codegate/internal/hook"
	"github.com/codegate-ai/codegate/internal/permission"
)

// isolate points every settings layer into temp directories so a test never
// reads the developer's real configuration.
func isolate(t *testing.T) (projectDir string) {
	t.Helper()
	projectDir = t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CODEGATE_POLICY_FILE", filepath.Join(t.TempDir(), "policy.json"))
	t.Setenv("CODEGATE_MODE", "")
	return projectDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadEmpty(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, permission.ModeDefault, cfg.Permissions.Mode)
	assert.Empty(t, cfg.Hooks)
	assert.Empty(t, cfg.MCPServers)
	for _, layer := range cfg.Layers {
		assert.False(t, layer.Present)
	}
}

func TestLoadProjectSettings(t *testing.T) {
	dir := isolate(t)
	writeFile(t, ProjectSettingsPath(dir), `{
		// project-wide policy
		"permissions": {
			"defaultMode": "acceptEdits",
			"allow": ["Bash(go test:*)", "Read"],
			"deny": ["Bash(rm:*)"],
			"additionalDirectories": ["/srv/shared"]
		},
		"hooks": {
			"PreToolUse": [
				{"matcher": "Bash", "hooks": [{"command": "./check.sh", "timeout": 5}]}
			]
		},
		"mcpServers": {
			"docs": {"enabled": true, "url": "http://localhost:8811/mcp"}
		}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	pctx := cfg.Permissions
	assert.Equal(t, permission.ModeAcceptEdits, pctx.Mode)
	assert.Equal(t, []string{"Bash(go test:*)", "Read"},
		pctx.Rules(permission.Allow, permission.SourceProjectSettings))
	assert.Equal(t, []string{"Bash(rm:*)"},
		pctx.Rules(permission.Deny, permission.SourceProjectSettings))
	assert.Contains(t, pctx.AdditionalDirectories, "/srv/shared")

	require.Len(t, cfg.Hooks[hook.PreToolUse], 1)
	assert.Equal(t, "Bash", cfg.Hooks[hook.PreToolUse][0].Matcher)
	assert.Equal(t, "./check.sh", cfg.Hooks[hook.PreToolUse][0].Hooks[0].Command)

	require.Contains(t, cfg.MCPServers, "docs")
	assert.True(t, cfg.MCPServers["docs"].Enabled)
}

func TestLoadLayerPrecedence(t *testing.T) {
	dir := isolate(t)
	writeFile(t, UserSettingsPath(), `{
		"permissions": {"defaultMode": "plan", "allow": ["Glob"]}
	}`)
	writeFile(t, ProjectSettingsPath(dir), `{
		"permissions": {"allow": ["Grep"]}
	}`)
	writeFile(t, LocalSettingsPath(dir), `{
		"permissions": {"defaultMode": "acceptEdits"}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	// Later layers win for the mode; rule lists stay with their source.
	assert.Equal(t, permission.ModeAcceptEdits, cfg.Permissions.Mode)
	assert.Equal(t, []string{"Glob"},
		cfg.Permissions.Rules(permission.Allow, permission.SourceUserSettings))
	assert.Equal(t, []string{"Grep"},
		cfg.Permissions.Rules(permission.Allow, permission.SourceProjectSettings))
}

func TestLoadPolicyDisablesBypass(t *testing.T) {
	dir := isolate(t)
	writeFile(t, os.Getenv("CODEGATE_POLICY_FILE"), `{
		"permissions": {
			"deny": ["WebFetch"],
			"disableBypassPermissionsMode": "disable"
		}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"WebFetch"},
		cfg.Permissions.Rules(permission.Deny, permission.SourcePolicySettings))
	assert.False(t, cfg.Permissions.BypassAvailable)
	assert.Equal(t, permission.ModeDefault,
		cfg.Permissions.WithMode(permission.ModeBypass).EffectiveMode())
}

func TestLoadModeEnvOverride(t *testing.T) {
	dir := isolate(t)
	writeFile(t, ProjectSettingsPath(dir), `{
		"permissions": {"defaultMode": "acceptEdits"}
	}`)
	t.Setenv("CODEGATE_MODE", "plan")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, permission.ModePlan, cfg.Permissions.Mode)
}

func TestLoadInterpolation(t *testing.T) {
	dir := isolate(t)
	t.Setenv("DOCS_PORT", "9001")
	secretPath := filepath.Join(dir, ".codegate", "token")
	writeFile(t, secretPath, "s3cret\n")
	writeFile(t, ProjectSettingsPath(dir), `{
		"mcpServers": {
			"docs": {
				"enabled": true,
				"url": "http://localhost:{env:DOCS_PORT}/mcp",
				"env": {"TOKEN": "{file:token}"}
			}
		}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	docs := cfg.MCPServers["docs"]
	assert.Equal(t, "http://localhost:9001/mcp", docs.URL)
	assert.Equal(t, "s3cret", docs.Env["TOKEN"])
}

func TestLoadMalformedFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, ProjectSettingsPath(dir), `{"permissions": {`)

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadHooksMergeAcrossLayers(t *testing.T) {
	dir := isolate(t)
	writeFile(t, UserSettingsPath(), `{
		"hooks": {"PreToolUse": [{"matcher": "*", "hooks": [{"command": "audit.sh"}]}]}
	}`)
	writeFile(t, ProjectSettingsPath(dir), `{
		"hooks": {"PreToolUse": [{"matcher": "Bash", "hooks": [{"command": "lint.sh"}]}]}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Hooks[hook.PreToolUse], 2)
	assert.Equal(t, "audit.sh", cfg.Hooks[hook.PreToolUse][0].Hooks[0].Command)
	assert.Equal(t, "lint.sh", cfg.Hooks[hook.PreToolUse][1].Hooks[0].Command)
}

func TestPersistRule(t *testing.T) {
	dir := isolate(t)

	err := PersistRule(dir, permission.SourceLocalSettings, permission.Allow, "Bash(make:*)")
	require.NoError(t, err)

	// Duplicate writes are idempotent.
	require.NoError(t,
		PersistRule(dir, permission.SourceLocalSettings, permission.Allow, "Bash(make:*)"))
	require.NoError(t,
		PersistRule(dir, permission.SourceLocalSettings, permission.Deny, "WebFetch"))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bash(make:*)"},
		cfg.Permissions.Rules(permission.Allow, permission.SourceLocalSettings))
	assert.Equal(t, []string{"WebFetch"},
		cfg.Permissions.Rules(permission.Deny, permission.SourceLocalSettings))
}

func TestPersistRuleSessionIsMemoryOnly(t *testing.T) {
	dir := isolate(t)

	require.NoError(t,
		PersistRule(dir, permission.SourceSession, permission.Allow, "Bash(make:*)"))

	_, err := os.Stat(LocalSettingsPath(dir))
	assert.True(t, os.IsNotExist(err))
}

func TestRulePersistenceSubscription(t *testing.T) {
	dir := isolate(t)

	unsubscribe := SubscribeRulePersistence(dir)
	defer unsubscribe()

	event.PublishSync(event.Event{
		Type: event.RuleAdded,
		Data: event.RuleAddedData{
			SessionID: "s1",
			Behavior:  "allow",
			Source:    "localSettings",
			Rule:      "Bash(python3:*)",
		},
	})

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bash(python3:*)"},
		cfg.Permissions.Rules(permission.Allow, permission.SourceLocalSettings))
}

func TestSettingsFileFor(t *testing.T) {
	dir := t.TempDir()

	path, ok := settingsFileFor(dir, permission.SourceProjectSettings)
	assert.True(t, ok)
	assert.Equal(t, ProjectSettingsPath(dir), path)

	_, ok = settingsFileFor(dir, permission.SourcePolicySettings)
	assert.False(t, ok)
}
