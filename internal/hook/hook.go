// Package hook runs externally configured commands around tool-call
// lifecycle events and reduces their replies to a single decision.
package hook

import (
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Event identifies the lifecycle point a hook is attached to.
type Event string

const (
	PreToolUse       Event = "PreToolUse"
	PostToolUse      Event = "PostToolUse"
	Stop             Event = "Stop"
	UserPromptSubmit Event = "UserPromptSubmit"
	SessionStart     Event = "SessionStart"
)

// defaultTimeout bounds a single hook invocation.
const defaultTimeout = 30 * time.Second

// Hook is a single configured hook command.
type Hook struct {
	// Command is run through the shell with the event payload on stdin.
	Command string `json:"command"`
	// Timeout in seconds; zero means the default.
	Timeout int `json:"timeout,omitempty"`
}

func (h Hook) timeout() time.Duration {
	if h.Timeout > 0 {
		return time.Duration(h.Timeout) * time.Second
	}
	return defaultTimeout
}

// Matcher binds hooks to the tools they fire for. An empty matcher or "*"
// matches every tool; "edit|write" matches either name; patterns with a
// wildcard are matched with doublestar.
type Matcher struct {
	Matcher string `json:"matcher,omitempty"`
	Hooks   []Hook `json:"hooks"`
}

// Matches reports whether this matcher covers toolName.
func (m Matcher) Matches(toolName string) bool {
	if m.Matcher == "" || m.Matcher == "*" {
		return true
	}
	for _, part := range strings.Split(m.Matcher, "|") {
		part = strings.TrimSpace(part)
		if part == toolName {
			return true
		}
		if strings.Contains(part, "*") {
			if ok, _ := doublestar.Match(part, toolName); ok {
				return true
			}
		}
	}
	return false
}

// Config maps each event to its configured matchers, in declared order.
type Config map[Event][]Matcher

// HooksFor returns the hooks to run for an event and tool, preserving
// declaration order. Non-tool events pass an empty tool name, which every
// matcher covers.
func (c Config) HooksFor(event Event, toolName string) []Hook {
	var hooks []Hook
	for _, m := range c[event] {
		if toolName == "" || m.Matches(toolName) {
			hooks = append(hooks, m.Hooks...)
		}
	}
	return hooks
}

// Payload is the JSON document written to a hook's stdin.
type Payload struct {
	HookEventName string         `json:"hook_event_name"`
	ToolName      string         `json:"tool_name,omitempty"`
	ToolInput     map[string]any `json:"tool_input,omitempty"`
	ToolResponse  any            `json:"tool_response,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Cwd           string         `json:"cwd,omitempty"`
}
