package hook

import (
	"bytes"
	"encoding/json"
)

// Outcome is the normalized verdict of one hook invocation.
type Outcome string

const (
	OutcomeAllow   Outcome = "allow"
	OutcomeDeny    Outcome = "deny"
	OutcomeAsk     Outcome = "ask"
	OutcomeNeutral Outcome = "neutral"
)

// Decision is one hook's normalized reply. Neutral means "no opinion" and is
// the default for empty output.
type Decision struct {
	Outcome Outcome
	Message string
}

// Blocking reports whether the decision stops the guarded action.
func (d Decision) Blocking() bool {
	return d.Outcome == OutcomeDeny
}

// wireReply covers both reply shapes hooks may emit: the typed form with
// hookSpecificOutput, and the legacy {decision: block|approve} form used by
// Stop and PostToolUse hooks. Neither shape leaks past this file.
type wireReply struct {
	HookSpecificOutput *struct {
		HookEventName            string `json:"hookEventName"`
		PermissionDecision       string `json:"permissionDecision"`
		PermissionDecisionReason string `json:"permissionDecisionReason"`
	} `json:"hookSpecificOutput"`
	Decision      string `json:"decision"`
	Reason        string `json:"reason"`
	SystemMessage string `json:"systemMessage"`
}

// parseReply normalizes raw hook output into a Decision. Empty or
// unparseable output from a zero-exit hook is neutral; callers decide what a
// parse failure means for a non-zero exit.
func parseReply(raw []byte) (Decision, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Decision{Outcome: OutcomeNeutral}, true
	}

	var reply wireReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Decision{Outcome: OutcomeNeutral}, false
	}

	message := reply.SystemMessage

	if reply.HookSpecificOutput != nil {
		if message == "" {
			message = reply.HookSpecificOutput.PermissionDecisionReason
		}
		switch reply.HookSpecificOutput.PermissionDecision {
		case "allow":
			return Decision{Outcome: OutcomeAllow, Message: message}, true
		case "deny":
			return Decision{Outcome: OutcomeDeny, Message: message}, true
		case "ask":
			return Decision{Outcome: OutcomeAsk, Message: message}, true
		}
	}

	if message == "" {
		message = reply.Reason
	}
	switch reply.Decision {
	case "block":
		return Decision{Outcome: OutcomeDeny, Message: message}, true
	case "approve":
		return Decision{Outcome: OutcomeAllow, Message: message}, true
	}

	// Valid JSON with no recognizable decision carries no opinion.
	return Decision{Outcome: OutcomeNeutral, Message: message}, true
}
