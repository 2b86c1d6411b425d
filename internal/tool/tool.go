// Package tool defines the capability contract the orchestrator consumes:
// a name, safety predicates, and a streaming execution entry point that
// yields progress events terminated by exactly one result or error.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is the contract every executable capability implements. The
// dispatcher never inspects input shapes; it drives tools through this
// interface only.
type Tool interface {
	// Name returns the tool identifier, e.g. "Bash" or "mcp__srv__search".
	Name() string

	// Description returns the tool description shown to the model.
	Description() string

	// Parameters returns the JSON Schema for the tool's input.
	Parameters() json.RawMessage

	// IsReadOnly reports whether this call leaves the machine unchanged.
	IsReadOnly(input map[string]any) bool

	// IsConcurrencySafe reports whether this call may run in parallel with
	// other concurrency-safe calls.
	IsConcurrencySafe(input map[string]any) bool

	// NeedsPermissions reports whether this call must pass the permission
	// rule engine before executing.
	NeedsPermissions(input map[string]any) bool

	// ValidateInput rejects malformed input before authorization.
	ValidateInput(input map[string]any) error

	// Run executes the call. The returned channel yields zero or more
	// progress events and then exactly one terminal event, after which it
	// is closed. The sequence is finite and non-restartable.
	Run(ctx context.Context, input map[string]any, tc *Context) <-chan ExecEvent
}

// Context provides execution context to tools.
type Context struct {
	SessionID string
	CallID    string
	WorkDir   string
	Extra     map[string]any
}

// ExecEvent is one event in a tool execution stream.
type ExecEvent struct {
	// Progress holds live output for display; set only on progress events.
	Progress string
	// Terminal marks the final event of the stream.
	Terminal bool
	Result   *Result
	Err      error
}

// Result represents the output of a completed tool execution.
type Result struct {
	Title    string         `json:"title"`
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// decode maps a duck-typed input object onto a tool's typed parameters.
func decode(input map[string]any, out any) error {
	data, err := json.Marshal(input)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

// run wraps a blocking execute function into the streaming contract.
func run(ctx context.Context, input map[string]any, tc *Context,
	execute func(context.Context, map[string]any, *Context) (*Result, error)) <-chan ExecEvent {
	ch := make(chan ExecEvent, 1)
	go func() {
		defer close(ch)
		result, err := execute(ctx, input, tc)
		if err != nil {
			ch <- ExecEvent{Terminal: true, Err: err}
			return
		}
		ch <- ExecEvent{Terminal: true, Result: result}
	}()
	return ch
}

// Drain consumes an execution stream, forwarding progress through onProgress
// (which may be nil) and returning the terminal result or error.
func Drain(events <-chan ExecEvent, onProgress func(string)) (*Result, error) {
	var result *Result
	err := fmt.Errorf("tool stream ended without a terminal event")
	for ev := range events {
		if ev.Terminal {
			result, err = ev.Result, ev.Err
			continue
		}
		if onProgress != nil {
			onProgress(ev.Progress)
		}
	}
	return result, err
}
