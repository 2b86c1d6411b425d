// Package config loads layered settings files and turns them into the
// runtime permission context, hook configuration, and MCP server set.
//
// Layers, from lowest to highest precedence for scalar fields:
// user settings (~/.config/codegate/settings.json), project settings
// (<dir>/.codegate/settings.json), local settings
// (<dir>/.codegate/settings.local.json), managed policy
// (/etc/codegate/policy.json or CODEGATE_POLICY_FILE). Rule lists are
// never merged across layers; each layer's rules keep their source so
// precedence stays a property of evaluation, not of loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/codegate-ai/codegate/internal/hook"
	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/internal/mcp"
	"github.com/codegate-ai/codegate/internal/permission"
)

// PermissionSettings is the "permissions" block of a settings file.
type PermissionSettings struct {
	DefaultMode           string   `json:"defaultMode,omitempty"`
	Allow                 []string `json:"allow,omitempty"`
	Deny                  []string `json:"deny,omitempty"`
	Ask                   []string `json:"ask,omitempty"`
	AdditionalDirectories []string `json:"additionalDirectories,omitempty"`
	// DisableBypassPermissionsMode set to "disable" forbids bypass mode.
	// Only honored in the policy layer.
	DisableBypassPermissionsMode string `json:"disableBypassPermissionsMode,omitempty"`
}

// Settings is the shape of one settings file.
type Settings struct {
	Permissions PermissionSettings    `json:"permissions,omitempty"`
	Hooks       hook.Config           `json:"hooks,omitempty"`
	MCPServers  map[string]mcp.Config `json:"mcpServers,omitempty"`
	Env         map[string]string     `json:"env,omitempty"`
}

// Layer pairs one loaded settings file with its rule source.
type Layer struct {
	Source   permission.Source
	Path     string
	Settings Settings
	// Present is false when the file did not exist.
	Present bool
}

// Config is the merged result of loading all layers.
type Config struct {
	Directory   string
	Permissions *permission.Context
	Hooks       hook.Config
	MCPServers  map[string]mcp.Config
	Layers      []Layer
}

// Load reads every settings layer for the given working directory and
// builds the runtime configuration. Missing files are not errors; a file
// that exists but does not parse is.
func Load(directory string) (*Config, error) {
	cfg := &Config{
		Directory:  directory,
		Hooks:      make(hook.Config),
		MCPServers: make(map[string]mcp.Config),
	}

	layers := []Layer{
		{Source: permission.SourceUserSettings, Path: UserSettingsPath()},
		{Source: permission.SourceProjectSettings, Path: ProjectSettingsPath(directory)},
		{Source: permission.SourceLocalSettings, Path: LocalSettingsPath(directory)},
		{Source: permission.SourcePolicySettings, Path: PolicySettingsPath()},
	}

	loaded := make(map[string]bool)
	for i := range layers {
		abs, err := filepath.Abs(layers[i].Path)
		if err == nil {
			if loaded[abs] {
				continue
			}
			loaded[abs] = true
		}
		present, err := readSettings(layers[i].Path, &layers[i].Settings)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", layers[i].Path, err)
		}
		layers[i].Present = present
	}
	cfg.Layers = layers

	pctx := permission.NewContext().WithBypassAvailable(true)
	for _, layer := range layers {
		if !layer.Present {
			continue
		}
		pctx = applyPermissions(pctx, layer)
		mergeHooks(cfg.Hooks, layer.Settings.Hooks)
		for name, server := range layer.Settings.MCPServers {
			cfg.MCPServers[name] = server
		}
		for key, value := range layer.Settings.Env {
			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	}

	if mode := os.Getenv("CODEGATE_MODE"); mode != "" {
		pctx = pctx.WithMode(permission.ParseMode(mode))
	}
	cfg.Permissions = pctx

	logging.Component("config").Debug().
		Str("directory", directory).
		Int("mcpServers", len(cfg.MCPServers)).
		Msg("settings loaded")
	return cfg, nil
}

// applyPermissions folds one layer's permission block into the context.
func applyPermissions(pctx *permission.Context, layer Layer) *permission.Context {
	p := layer.Settings.Permissions
	if p.DefaultMode != "" {
		pctx = pctx.WithMode(permission.ParseMode(p.DefaultMode))
	}
	if len(p.Allow) > 0 {
		pctx = pctx.WithRules(permission.Allow, layer.Source, p.Allow...)
	}
	if len(p.Deny) > 0 {
		pctx = pctx.WithRules(permission.Deny, layer.Source, p.Deny...)
	}
	if len(p.Ask) > 0 {
		pctx = pctx.WithRules(permission.Ask, layer.Source, p.Ask...)
	}
	for _, dir := range p.AdditionalDirectories {
		pctx = pctx.WithDirectory(dir, layer.Source)
	}
	if layer.Source == permission.SourcePolicySettings &&
		p.DisableBypassPermissionsMode == "disable" {
		pctx = pctx.WithBypassAvailable(false)
	}
	return pctx
}

// mergeHooks appends each layer's matchers so every configured hook runs.
func mergeHooks(dst, src hook.Config) {
	for evt, matchers := range src {
		dst[evt] = append(dst[evt], matchers...)
	}
}

// readSettings loads one settings file, stripping JSONC comments and
// interpolating placeholders. The boolean reports whether the file existed.
func readSettings(path string, out *Settings) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, filepath.Dir(path))

	if err := json.Unmarshal(data, out); err != nil {
		return true, err
	}
	return true, nil
}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		path := filePattern.FindStringSubmatch(match)[1]
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return match
		}
		return strings.TrimSpace(string(content))
	})

	return []byte(str)
}
