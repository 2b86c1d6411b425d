package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard directories for codegate data.
type Paths struct {
	Data   string // ~/.local/share/codegate
	Config string // ~/.config/codegate
	Cache  string // ~/.cache/codegate
	State  string // ~/.local/state/codegate
}

// GetPaths returns the standard paths, honoring XDG overrides.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "codegate"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "codegate"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "codegate"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "codegate"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// UserSettingsPath is the user-level settings file.
func UserSettingsPath() string {
	return filepath.Join(GetPaths().Config, "settings.json")
}

// ProjectSettingsPath is the checked-in project settings file.
func ProjectSettingsPath(directory string) string {
	return filepath.Join(directory, ".codegate", "settings.json")
}

// LocalSettingsPath is the developer-local, non-checked-in settings file.
func LocalSettingsPath(directory string) string {
	return filepath.Join(directory, ".codegate", "settings.local.json")
}

// PolicySettingsPath is the machine-wide managed policy file. Rules from it
// cannot be removed at runtime.
func PolicySettingsPath() string {
	if p := os.Getenv("CODEGATE_POLICY_FILE"); p != "" {
		return p
	}
	return "/etc/codegate/policy.json"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
