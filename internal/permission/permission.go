// Package permission implements the layered permission policy for tool
// execution: rule storage per configuration source, rule string matching,
// and the pure evaluation function that turns a tool call into an
// allow/deny/ask verdict.
package permission

import "fmt"

// Behavior is the verdict class a rule carries.
type Behavior string

const (
	Allow Behavior = "allow"
	Deny  Behavior = "deny"
	Ask   Behavior = "ask"
)

// Mode is the operating mode of a conversation's permission context.
type Mode string

const (
	ModeDefault     Mode = "default"
	ModeAcceptEdits Mode = "acceptEdits"
	ModePlan        Mode = "plan"
	ModeBypass      Mode = "bypassPermissions"
	ModeDontAsk     Mode = "dontAsk"
)

// ParseMode converts a mode string, falling back to default.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeAcceptEdits, ModePlan, ModeBypass, ModeDontAsk:
		return Mode(s)
	default:
		return ModeDefault
	}
}

// Source identifies the configuration layer a rule originated from. The
// order here is for storage and display only; it never affects precedence.
type Source string

const (
	SourceSession         Source = "session"
	SourceLocalSettings   Source = "localSettings"
	SourceUserSettings    Source = "userSettings"
	SourceProjectSettings Source = "projectSettings"
	SourceFlagSettings    Source = "flagSettings"
	SourcePolicySettings  Source = "policySettings"
	SourceCLIArg          Source = "cliArg"
	SourceCommand         Source = "command"
)

// Sources lists all rule sources in display order.
var Sources = []Source{
	SourceSession,
	SourceLocalSettings,
	SourceUserSettings,
	SourceProjectSettings,
	SourceFlagSettings,
	SourcePolicySettings,
	SourceCLIArg,
	SourceCommand,
}

// Decision is the outcome of evaluating one tool call against the policy.
type Decision struct {
	Behavior Behavior
	// Rule and RuleSource identify the matched rule, when one matched.
	Rule       string
	RuleSource Source
	// Message explains a deny to the model and the user.
	Message string
	// Promptable marks a deny that could in principle be resolved by asking
	// a human. Hard policy denials are not promptable.
	Promptable bool
	// Silent marks a mode-derived deny that resolves the call entirely on
	// its own: neither hooks nor an interactive channel are consulted.
	Silent bool
}

// Directory is an additional working directory granted to the conversation.
type Directory struct {
	Path   string `json:"path"`
	Source Source `json:"source"`
}

// RejectedError is returned up the tool-call path when permission is denied.
type RejectedError struct {
	ToolName string
	Rule     string
	Message  string
}

func (e *RejectedError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s (rule: %s)", e.Message, e.Rule)
	}
	return e.Message
}

// IsRejectedError checks if an error is a permission rejection.
func IsRejectedError(err error) bool {
	_, ok := err.(*RejectedError)
	return ok
}
