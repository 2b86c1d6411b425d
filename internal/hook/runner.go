package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/codegate-ai/codegate/internal/event"
	"github.com/codegate-ai/codegate/internal/logging"
)

// Runner executes configured hooks for lifecycle events.
type Runner struct {
	config Config
	cwd    string
}

// NewRunner creates a hook runner for the given configuration.
func NewRunner(config Config, cwd string) *Runner {
	return &Runner{config: config, cwd: cwd}
}

// Run executes every hook configured for the event in declared order and
// reduces their decisions: the first deny/block short-circuits, otherwise
// the last non-neutral decision wins, otherwise neutral.
//
// A hook that errors, times out, or exits non-zero with unparseable output
// contributes neutral. That failure is logged and published, never silently
// converted into an allow or a deny.
func (r *Runner) Run(ctx context.Context, ev Event, payload Payload) Decision {
	payload.HookEventName = string(ev)
	if payload.Cwd == "" {
		payload.Cwd = r.cwd
	}

	result := Decision{Outcome: OutcomeNeutral}
	for _, h := range r.config.HooksFor(ev, payload.ToolName) {
		decision, err := r.runOne(ctx, h, payload)
		if err != nil {
			r.reportFailure(ev, h, payload.SessionID, err)
			continue
		}
		if decision.Blocking() {
			return decision
		}
		if decision.Outcome != OutcomeNeutral {
			result = decision
		}
	}
	return result
}

// runOne invokes a single hook command with the payload on stdin.
func (r *Runner) runOne(ctx context.Context, h Hook, payload Payload) (Decision, error) {
	input, err := json.Marshal(payload)
	if err != nil {
		return Decision{}, fmt.Errorf("marshal hook payload: %w", err)
	}

	hookCtx, cancel := context.WithTimeout(ctx, h.timeout())
	defer cancel()

	cmd := exec.CommandContext(hookCtx, "sh", "-c", h.Command)
	cmd.Dir = r.cwd
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if errors.Is(hookCtx.Err(), context.DeadlineExceeded) {
		return Decision{}, fmt.Errorf("hook timed out after %s", h.timeout())
	}

	decision, parsed := parseReply(stdout.Bytes())
	if runErr != nil {
		if parsed && decision.Outcome != OutcomeNeutral {
			// A non-zero exit with a well-formed decision still counts.
			return decision, nil
		}
		return Decision{}, fmt.Errorf("hook failed: %w (stderr: %s)", runErr, stderr.String())
	}
	return decision, nil
}

func (r *Runner) reportFailure(ev Event, h Hook, sessionID string, err error) {
	logging.Component("hook").Warn().
		Str("event", string(ev)).
		Str("command", h.Command).
		Err(err).
		Msg("hook execution failed")

	event.Publish(event.Event{
		Type: event.HookFailed,
		Data: event.HookFailedData{
			SessionID: sessionID,
			Event:     string(ev),
			Command:   h.Command,
			Error:     err.Error(),
		},
	})
}

// StopResult is the reduced outcome of the Stop hooks for one turn.
type StopResult struct {
	// Block prevents the turn from terminating.
	Block bool
	// Reason is injected into the conversation as the next instruction
	// when Block is set.
	Reason string
}

// RunStop runs the Stop hooks and reports whether the turn may end.
func (r *Runner) RunStop(ctx context.Context, sessionID string) StopResult {
	d := r.Run(ctx, Stop, Payload{SessionID: sessionID})
	if d.Blocking() {
		return StopResult{Block: true, Reason: d.Message}
	}
	return StopResult{}
}
