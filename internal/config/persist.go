package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/codegate-ai/codegate/internal/event"
	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/internal/permission"
)

// PersistRule appends a rule to the settings file owning the given source.
// Session rules live only in the permission context and are not written
// anywhere; policy settings are managed externally and never written.
func PersistRule(directory string, source permission.Source, behavior permission.Behavior, rule string) error {
	path, ok := settingsFileFor(directory, source)
	if !ok {
		return nil
	}

	var settings Settings
	if _, err := readSettings(path, &settings); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	switch behavior {
	case permission.Allow:
		settings.Permissions.Allow = appendUnique(settings.Permissions.Allow, rule)
	case permission.Deny:
		settings.Permissions.Deny = appendUnique(settings.Permissions.Deny, rule)
	case permission.Ask:
		settings.Permissions.Ask = appendUnique(settings.Permissions.Ask, rule)
	default:
		return fmt.Errorf("unknown behavior %q", behavior)
	}

	return writeSettings(path, &settings)
}

// SubscribeRulePersistence wires rule-added events to settings files. The
// returned function unsubscribes.
func SubscribeRulePersistence(directory string) func() {
	return event.Subscribe(event.RuleAdded, func(evt event.Event) {
		data, ok := evt.Data.(event.RuleAddedData)
		if !ok {
			return
		}
		source := permission.Source(data.Source)
		behavior := permission.Behavior(data.Behavior)
		if err := PersistRule(directory, source, behavior, data.Rule); err != nil {
			logging.Component("config").Error().
				Err(err).
				Str("rule", data.Rule).
				Str("source", data.Source).
				Msg("failed to persist rule")
		}
	})
}

func settingsFileFor(directory string, source permission.Source) (string, bool) {
	switch source {
	case permission.SourceUserSettings:
		return UserSettingsPath(), true
	case permission.SourceProjectSettings:
		return ProjectSettingsPath(directory), true
	case permission.SourceLocalSettings:
		return LocalSettingsPath(directory), true
	default:
		return "", false
	}
}

func appendUnique(rules []string, rule string) []string {
	for _, r := range rules {
		if r == rule {
			return rules
		}
	}
	return append(rules, rule)
}

// writeSettings serializes settings back to disk. Comments in the original
// file are not preserved; jsonc is a read-side concession only.
func writeSettings(path string, settings *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}
