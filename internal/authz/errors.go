// Package authz coordinates permission rules, interactive prompts, and
// hooks into a single authorization verdict per tool call.
package authz

import (
	"errors"
	"fmt"
)

// PolicyDeniedError is a final deny from the rule engine or a hook. It is
// never retried.
type PolicyDeniedError struct {
	ToolName string
	Rule     string
	Message  string
}

func (e *PolicyDeniedError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s (rule: %s)", e.Message, e.Rule)
	}
	return e.Message
}

// UnresolvedError is an ask verdict with no interactive channel available.
// The caller decides whether to fail the run or escalate out-of-band.
type UnresolvedError struct {
	ToolName    string
	Message     string
	Suggestions []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s requires approval and no interactive prompt is available", e.ToolName)
}

// IsUnresolved reports whether err is an UnresolvedError.
func IsUnresolved(err error) bool {
	var u *UnresolvedError
	return errors.As(err, &u)
}
