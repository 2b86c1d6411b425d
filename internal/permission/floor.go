package permission

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FloorOverrideEnv disables the sensitive-path safety floor when set to "1".
// It exists for sandboxed environments that deliberately accept the risk.
const FloorOverrideEnv = "CODEGATE_BYPASS_SAFETY_FLOOR"

// sensitivePathPatterns are paths no tool may write to, regardless of mode.
// The floor runs even under bypassPermissions.
var sensitivePathPatterns = []string{
	"**/.ssh/**",
	"**/.ssh",
	"**/id_rsa*",
	"**/id_ed25519*",
	"**/id_ecdsa*",
	"**/authorized_keys",
	"**/.gnupg/**",
	"**/.aws/credentials",
	"/etc/sudoers",
	"/etc/sudoers.d/**",
	"/etc/shadow",
	"/etc/passwd",
}

// writingCommands are shell commands treated as writes for floor purposes.
var writingCommands = map[string]bool{
	"rm":    true,
	"mv":    true,
	"cp":    true,
	"dd":    true,
	"tee":   true,
	"chmod": true,
	"chown": true,
	"touch": true,
	"truncate": true,
	"ln":    true,
	"sed":   true,
}

// IsSensitivePath reports whether path falls under the safety floor.
func IsSensitivePath(path string) bool {
	if path == "" {
		return false
	}
	p := filepath.Clean(expandHome(path))
	for _, pattern := range sensitivePathPatterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// floorOverridden reports whether the explicit environment override is set.
func floorOverridden() bool {
	return os.Getenv(FloorOverrideEnv) == "1"
}

// checkSafetyFloor denies writes that target sensitive paths. It returns a
// non-promptable deny decision and true when the call is blocked.
func checkSafetyFloor(toolName string, input map[string]any) (Decision, bool) {
	if floorOverridden() {
		return Decision{}, false
	}

	var target string
	switch toolName {
	case "Write", "Edit":
		path := stringInput(input, "file_path", "filePath", "path")
		if IsSensitivePath(path) {
			target = path
		}
	case "Bash":
		for _, cmd := range ParseBashCommands(stringInput(input, "command")) {
			if !writingCommands[cmd.Name] {
				continue
			}
			for _, arg := range cmd.Args {
				if strings.HasPrefix(arg, "-") {
					continue
				}
				if IsSensitivePath(arg) {
					target = arg
					break
				}
			}
			if target != "" {
				break
			}
		}
	}

	if target == "" {
		return Decision{}, false
	}
	return Decision{
		Behavior:   Deny,
		Message:    "Writing to " + target + " is blocked: the path holds credentials",
		Promptable: false,
	}, true
}
