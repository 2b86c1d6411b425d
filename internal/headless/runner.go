package headless

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/oklog/ulid/v2"

	"github.com/codegate-ai/codegate/internal/authz"
	"github.com/codegate-ai/codegate/internal/config"
	"github.com/codegate-ai/codegate/internal/dispatch"
	"github.com/codegate-ai/codegate/internal/hook"
	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/internal/mcp"
	"github.com/codegate-ai/codegate/internal/storage"
	"github.com/codegate-ai/codegate/internal/tool"
)

// Runner executes one tool-call turn without a UI.
type Runner struct {
	config  *Config
	printer *Printer

	// PromptIn is where interactive approval answers are read from.
	// Defaults to the terminal.
	PromptIn io.Reader
}

// NewRunner creates a new headless runner.
func NewRunner(cfg *Config) *Runner {
	return &Runner{config: cfg, PromptIn: os.Stdin}
}

// Run dispatches the turn and returns the result. The error is non-nil only
// for setup failures; per-call failures are reported in the result.
func (r *Runner) Run(ctx context.Context, turn *Turn, writer io.Writer) (*Result, error) {
	r.printer = NewPrinter(writer, r.config.OutputFormat, r.config.Quiet, r.config.Verbose)
	r.printer.Subscribe()
	defer r.printer.Unsubscribe()
	defer r.printer.PrintFinalResult()

	cfg, err := config.Load(r.config.WorkDir)
	if err != nil {
		r.printer.SetResult("error", ExitError, err)
		return r.printer.GetResult(), err
	}

	sessionID := r.config.SessionID
	if sessionID == "" {
		sessionID = ulid.Make().String()
	}
	r.printer.SetSessionID(sessionID)

	unsubscribe := config.SubscribeRulePersistence(r.config.WorkDir)
	defer unsubscribe()

	registry := tool.DefaultRegistry(r.config.WorkDir)

	manager := mcp.NewManager()
	defer manager.Close()
	for name, server := range cfg.MCPServers {
		if err := manager.AddServer(ctx, name, server); err != nil {
			logging.Component("headless").Warn().
				Str("server", name).
				Err(err).
				Msg("mcp server unavailable")
		}
	}
	manager.Register(registry)

	hooks := hook.NewRunner(cfg.Hooks, r.config.WorkDir)
	hooks.Run(ctx, hook.SessionStart, hook.Payload{
		HookEventName: string(hook.SessionStart),
		SessionID:     sessionID,
		Cwd:           r.config.WorkDir,
	})

	prompter := prompterFor(r.config.Approval, r.PromptIn, writer)
	authorizer := authz.NewAuthorizer(hooks, prompter, sessionID)
	dispatcher := dispatch.NewDispatcher(registry, authorizer, hooks, sessionID, r.config.WorkDir)
	dispatcher.CommandAllowedTools = r.config.AllowedTools

	requests := make([]*dispatch.Request, 0, len(turn.Calls))
	for _, call := range turn.Calls {
		req := dispatch.NewRequest(call.ID, call.Tool)
		if len(call.Arguments) > 0 {
			if err := req.AppendArguments(string(call.Arguments)); err != nil {
				r.printer.SetResult("error", ExitInvalidInput, err)
				return r.printer.GetResult(), err
			}
		}
		requests = append(requests, req)
	}

	runCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	turnResult, _ := dispatcher.Dispatch(runCtx, requests, cfg.Permissions)

	calls := make([]CallResult, 0, len(turnResult.Outcomes))
	rejected := false
	for _, outcome := range turnResult.Outcomes {
		cr := CallResult{
			ID:      outcome.CallID,
			Tool:    outcome.ToolName,
			Outcome: string(outcome.Kind),
			Message: outcome.Message,
		}
		if outcome.Result != nil {
			cr.Title = outcome.Result.Title
			cr.Output = outcome.Result.Output
		}
		if outcome.Err != nil {
			cr.Error = outcome.Err.Error()
		}
		if outcome.Kind == dispatch.OutcomeRejected {
			rejected = true
		}
		calls = append(calls, cr)
	}
	r.printer.SetTurn(turnResult.TurnID, calls, turnResult.Continue, turnResult.Instruction)

	r.saveHistory(ctx, sessionID, turnResult)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		r.printer.SetResult("timeout", ExitTimeout, nil)
	case rejected:
		r.printer.SetResult("rejected", ExitPermissionDenied, nil)
	default:
		r.printer.SetResult("success", ExitSuccess, nil)
	}
	return r.printer.GetResult(), nil
}

// saveHistory persists the turn record under the state directory. History is
// best effort; a write failure never fails the turn.
func (r *Runner) saveHistory(ctx context.Context, sessionID string, turn dispatch.TurnResult) {
	record := storage.TurnRecord{
		TurnID:      turn.TurnID,
		SessionID:   sessionID,
		Calls:       make([]storage.CallRecord, 0, len(turn.Outcomes)),
		Continued:   turn.Continue,
		Instruction: turn.Instruction,
	}
	for _, outcome := range turn.Outcomes {
		record.Calls = append(record.Calls, storage.CallRecord{
			CallID:   outcome.CallID,
			ToolName: outcome.ToolName,
			Outcome:  string(outcome.Kind),
			Message:  outcome.Message,
		})
	}
	store := storage.New(config.GetPaths().State)
	if err := store.SaveTurn(ctx, record); err != nil {
		logging.Component("headless").Warn().Err(err).Msg("failed to persist turn history")
	}
}
