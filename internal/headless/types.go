package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// OutputFormat defines the output format for headless mode.
type OutputFormat string

const (
	// OutputText is human-readable streaming text output.
	OutputText OutputFormat = "text"
	// OutputJSON is a final JSON result summary.
	OutputJSON OutputFormat = "json"
	// OutputJSONL is streaming JSONL events.
	OutputJSONL OutputFormat = "jsonl"
)

// ApprovalMode controls how ask verdicts are resolved without a UI.
type ApprovalMode string

const (
	// ApprovalInteractive prompts on the terminal.
	ApprovalInteractive ApprovalMode = "interactive"
	// ApprovalAuto grants every prompt.
	ApprovalAuto ApprovalMode = "auto-approve"
	// ApprovalDeny runs without a prompter; ask verdicts come back as
	// unresolved rejections the caller can surface.
	ApprovalDeny ApprovalMode = "deny"
)

// ExitCode defines exit codes for headless mode.
type ExitCode int

const (
	// ExitSuccess indicates every call executed.
	ExitSuccess ExitCode = 0
	// ExitError indicates a general/unknown error.
	ExitError ExitCode = 1
	// ExitTimeout indicates the turn deadline was exceeded.
	ExitTimeout ExitCode = 2
	// ExitPermissionDenied indicates at least one call was rejected.
	ExitPermissionDenied ExitCode = 3
	// ExitInvalidInput indicates a malformed turn description.
	ExitInvalidInput ExitCode = 5
)

// Config holds configuration for headless execution.
type Config struct {
	// WorkDir is the working directory tools run in.
	WorkDir string
	// Approval selects how permission prompts are answered.
	Approval ApprovalMode
	// OutputFormat specifies the output format (text, json, jsonl).
	OutputFormat OutputFormat
	// Timeout is the maximum turn duration.
	Timeout time.Duration
	// Quiet suppresses progress output, only shows the result.
	Quiet bool
	// Verbose includes every bus event in jsonl output.
	Verbose bool
	// SessionID continues an existing session; empty generates one.
	SessionID string
	// AllowedTools is an extra allow-list merged into authorization,
	// the way a slash command pre-approves its own tools.
	AllowedTools []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Approval:     ApprovalDeny,
		OutputFormat: OutputText,
		Timeout:      30 * time.Minute,
	}
}

// Call is one requested tool call in a turn description.
type Call struct {
	ID   string `json:"id,omitempty"`
	Tool string `json:"tool"`
	// Arguments is the raw argument text. It may be partial JSON cut off
	// mid-stream; the dispatcher repairs it before execution.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Turn is the input document: the calls one model turn requested.
type Turn struct {
	Calls []Call `json:"calls"`
}

// ParseTurn reads a turn description from r.
func ParseTurn(r io.Reader) (*Turn, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var turn Turn
	if err := json.Unmarshal(data, &turn); err != nil {
		return nil, fmt.Errorf("parse turn: %w", err)
	}
	if len(turn.Calls) == 0 {
		return nil, fmt.Errorf("turn has no tool calls")
	}
	for i := range turn.Calls {
		if turn.Calls[i].Tool == "" {
			return nil, fmt.Errorf("call %d has no tool name", i)
		}
		if turn.Calls[i].ID == "" {
			turn.Calls[i].ID = fmt.Sprintf("call_%d", i)
		}
	}
	return &turn, nil
}

// CallResult is one call's outcome in the final result.
type CallResult struct {
	ID      string `json:"id"`
	Tool    string `json:"tool"`
	Outcome string `json:"outcome"` // "executed" | "rejected" | "cancelled"
	Title   string `json:"title,omitempty"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Result holds the final result of a headless turn.
type Result struct {
	SessionID   string       `json:"session_id"`
	TurnID      string       `json:"turn_id,omitempty"`
	Status      string       `json:"status"` // "success", "rejected", "timeout", "error"
	DurationMS  int64        `json:"duration_ms"`
	Calls       []CallResult `json:"calls,omitempty"`
	Continued   bool         `json:"continued,omitempty"`
	Instruction string       `json:"instruction,omitempty"`
	Error       string       `json:"error,omitempty"`
	ExitCode    ExitCode     `json:"exit_code"`
}
