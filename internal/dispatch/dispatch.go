// Package dispatch drives one model turn's tool calls through
// authorization and execution, preserving the model's requested order
// while running concurrency-safe calls in parallel.
package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/codegate-ai/codegate/internal/authz"
	"github.com/codegate-ai/codegate/internal/event"
	"github.com/codegate-ai/codegate/internal/hook"
	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/internal/permission"
	"github.com/codegate-ai/codegate/internal/tool"
)

const defaultFinalizeTimeout = 5 * time.Second

// Dispatcher resolves the tool calls of one model turn.
type Dispatcher struct {
	registry   *tool.Registry
	authorizer *authz.Authorizer
	hooks      *hook.Runner
	sessionID  string
	workDir    string

	// CommandAllowedTools is the invoking slash command's allow-list,
	// merged into authorization as an extra allow source.
	CommandAllowedTools []string

	// finalizeTimeout bounds the wait for a tool body that ignores
	// cancellation; the turn finalizes once it elapses.
	finalizeTimeout time.Duration
}

// NewDispatcher creates a dispatcher for one session.
func NewDispatcher(registry *tool.Registry, authorizer *authz.Authorizer, hooks *hook.Runner, sessionID, workDir string) *Dispatcher {
	return &Dispatcher{
		registry:        registry,
		authorizer:      authorizer,
		hooks:           hooks,
		sessionID:       sessionID,
		workDir:         workDir,
		finalizeTimeout: defaultFinalizeTimeout,
	}
}

// plannedCall is one request after argument finalization and tool lookup.
type plannedCall struct {
	req   *Request
	tool  tool.Tool
	input map[string]any
}

// Dispatch runs every request of one turn to a terminal outcome. Outcomes
// come back in request order regardless of completion order. The returned
// permission context carries any rules persisted by interactive decisions
// mid-turn; they apply to later calls in this turn and to future turns,
// never retroactively.
//
// Cancelling ctx prevents not-yet-started calls from executing, propagates
// to running tool bodies, and still produces a Cancelled outcome for every
// request.
func (d *Dispatcher) Dispatch(ctx context.Context, requests []*Request, pctx *permission.Context) (TurnResult, *permission.Context) {
	turnID := newTurnID()
	outcomes := make([]Outcome, len(requests))
	planned := make([]plannedCall, len(requests))

	for i, req := range requests {
		outcomes[i] = Outcome{CallID: req.ID, ToolName: req.ToolName}
		planned[i] = d.plan(req, &outcomes[i])
	}

	for i := 0; i < len(requests); {
		if ctx.Err() != nil {
			break
		}
		if outcomes[i].Kind != "" {
			i++
			continue
		}

		if d.parallelizable(planned[i], pctx) {
			// Extend the group with consecutive calls that are either
			// already resolved or can run alongside this one.
			j := i
			var group []int
			for j < len(requests) {
				if outcomes[j].Kind != "" {
					j++
					continue
				}
				if !d.parallelizable(planned[j], pctx) {
					break
				}
				group = append(group, j)
				j++
			}

			// Each call gets the group's starting snapshot; rules remembered
			// through a mid-call prompt are folded back in afterwards.
			updated := make([]*permission.Context, len(group))
			var g errgroup.Group
			for k, idx := range group {
				k, idx := k, idx
				g.Go(func() error {
					outcomes[idx], updated[k] = d.runCall(ctx, planned[idx], pctx)
					return nil
				})
			}
			g.Wait()
			for _, u := range updated {
				pctx = mergeRules(pctx, u)
			}
			i = j
			continue
		}

		outcomes[i], pctx = d.runCall(ctx, planned[i], pctx)
		i++
	}

	for i := range outcomes {
		if outcomes[i].Kind == "" {
			outcomes[i].Kind = OutcomeCancelled
			d.publishResolved(outcomes[i])
		}
	}

	result := TurnResult{TurnID: turnID, Outcomes: outcomes}
	if ctx.Err() == nil {
		stop := d.hooks.RunStop(ctx, d.sessionID)
		result.Continue = stop.Block
		result.Instruction = stop.Reason
	}

	event.Publish(event.Event{
		Type: event.TurnCompleted,
		Data: event.TurnCompletedData{
			SessionID: d.sessionID,
			TurnID:    turnID,
			Continued: result.Continue,
		},
	})
	return result, pctx
}

// plan finalizes a request's arguments and resolves its tool. Failures are
// written into the outcome immediately; the call never starts.
func (d *Dispatcher) plan(req *Request, outcome *Outcome) plannedCall {
	pc := plannedCall{req: req}

	input, err := req.Finalize()
	if err != nil {
		outcome.Kind = OutcomeRejected
		outcome.Message = err.Error()
		d.publishResolved(*outcome)
		return pc
	}
	pc.input = input

	tl, err := d.registry.Resolve(req.ToolName)
	if err != nil {
		outcome.Kind = OutcomeRejected
		outcome.Message = err.Error()
		d.publishResolved(*outcome)
		return pc
	}
	pc.tool = tl

	if err := tl.ValidateInput(input); err != nil {
		outcome.Kind = OutcomeRejected
		outcome.Message = fmt.Sprintf("invalid input for %s: %v", req.ToolName, err)
		d.publishResolved(*outcome)
		return pc
	}
	return pc
}

// parallelizable reports whether a call can join a parallel group: its tool
// must be concurrency-safe for this input and its authorization must already
// be decidable without a human.
func (d *Dispatcher) parallelizable(pc plannedCall, pctx *permission.Context) bool {
	if pc.tool == nil {
		return false
	}
	if !pc.tool.IsConcurrencySafe(pc.input) {
		return false
	}
	if !pc.tool.NeedsPermissions(pc.input) {
		return true
	}
	decision := permission.Evaluate(permission.CheckRequest{
		ToolName:            pc.req.ToolName,
		Input:               pc.input,
		CommandAllowedTools: d.CommandAllowedTools,
	}, pctx)
	return decision.Behavior != permission.Ask
}

// runCall takes one planned call from authorization through execution.
func (d *Dispatcher) runCall(ctx context.Context, pc plannedCall, pctx *permission.Context) (Outcome, *permission.Context) {
	outcome := Outcome{CallID: pc.req.ID, ToolName: pc.req.ToolName}
	d.publishStatus(pc.req, string(StateAuthorizing), "")

	res, pctx, err := d.authorizer.Authorize(ctx, authz.CallSpec{
		Tool:                pc.tool,
		Input:               pc.input,
		CommandAllowedTools: d.CommandAllowedTools,
	}, pctx)
	if err != nil {
		outcome.Kind = OutcomeCancelled
		d.publishResolved(outcome)
		return outcome, pctx
	}
	if !res.Allowed {
		outcome.Kind = OutcomeRejected
		outcome.Message = res.Message
		outcome.Promptable = res.Promptable
		d.publishResolved(outcome)
		return outcome, pctx
	}

	if ctx.Err() != nil {
		outcome.Kind = OutcomeCancelled
		d.publishResolved(outcome)
		return outcome, pctx
	}

	d.publishStatus(pc.req, string(StateExecuting), "")
	events := pc.tool.Run(ctx, pc.input, &tool.Context{
		SessionID: d.sessionID,
		CallID:    pc.req.ID,
		WorkDir:   d.workDir,
	})
	result, runErr := d.drain(ctx, events, func(progress string) {
		d.publishStatus(pc.req, string(StateExecuting), progress)
	})

	switch {
	case runErr != nil && ctx.Err() != nil:
		outcome.Kind = OutcomeCancelled
	case runErr != nil:
		outcome.Kind = OutcomeExecuted
		outcome.Err = &ToolExecutionError{CallID: pc.req.ID, ToolName: pc.req.ToolName, Err: runErr}
		outcome.Message = runErr.Error()
	default:
		outcome.Kind = OutcomeExecuted
		outcome.Result = result
	}

	if outcome.Kind == OutcomeExecuted {
		post := d.hooks.Run(ctx, hook.PostToolUse, hook.Payload{
			ToolName:     pc.req.ToolName,
			ToolInput:    pc.input,
			ToolResponse: hookResponse(result, runErr),
			SessionID:    d.sessionID,
		})
		if post.Outcome != hook.OutcomeNeutral && post.Message != "" {
			outcome.Message = post.Message
		}
	}

	d.publishResolved(outcome)
	return outcome, pctx
}

// drain consumes a tool stream to its terminal event. After cancellation it
// keeps draining for a bounded grace period, then gives up on tools that
// ignore the signal.
func (d *Dispatcher) drain(ctx context.Context, events <-chan tool.ExecEvent, onProgress func(string)) (*tool.Result, error) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("tool stream ended without a terminal event")
			}
			if ev.Terminal {
				return ev.Result, ev.Err
			}
			if onProgress != nil {
				onProgress(ev.Progress)
			}
		case <-ctx.Done():
			deadline := time.After(d.finalizeTimeout)
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return nil, ctx.Err()
					}
					if ev.Terminal {
						return ev.Result, ev.Err
					}
				case <-deadline:
					logging.Component("dispatch").Warn().
						Msg("tool ignored cancellation, finalizing without it")
					return nil, ctx.Err()
				}
			}
		}
	}
}

func (d *Dispatcher) publishStatus(req *Request, status, progress string) {
	event.Publish(event.Event{
		Type: event.ToolCallUpdated,
		Data: event.ToolCallUpdatedData{
			SessionID: d.sessionID,
			CallID:    req.ID,
			ToolName:  req.ToolName,
			Status:    status,
			Progress:  progress,
		},
	})
}

func (d *Dispatcher) publishResolved(o Outcome) {
	event.Publish(event.Event{
		Type: event.ToolCallResolved,
		Data: event.ToolCallResolvedData{
			SessionID: d.sessionID,
			CallID:    o.CallID,
			ToolName:  o.ToolName,
			Outcome:   string(o.Kind),
			Message:   o.Message,
		},
	})
}

// mergeRules folds rules one call's authorization added into its context
// snapshot back into the turn context. Rules are the only permission state a
// call can add mid-turn, so re-appending them is a complete merge; WithRules
// skips duplicates.
func mergeRules(base, updated *permission.Context) *permission.Context {
	if updated == nil || updated == base {
		return base
	}
	for _, behavior := range []permission.Behavior{permission.Allow, permission.Deny, permission.Ask} {
		for _, source := range permission.Sources {
			if rules := updated.Rules(behavior, source); len(rules) > 0 {
				base = base.WithRules(behavior, source, rules...)
			}
		}
	}
	return base
}

// hookResponse is what PostToolUse hooks see as tool_response.
func hookResponse(result *tool.Result, runErr error) any {
	if runErr != nil {
		return map[string]any{"error": runErr.Error()}
	}
	if result == nil {
		return nil
	}
	return map[string]any{"title": result.Title, "output": result.Output}
}

func newTurnID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.New(rand.NewSource(time.Now().UnixNano()))).String()
}
