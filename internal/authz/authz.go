package authz

import (
	"context"

	"github.com/codegate-ai/codegate/internal/event"
	"github.com/codegate-ai/codegate/internal/hook"
	"github.com/codegate-ai/codegate/internal/logging"
	"github.com/codegate-ai/codegate/internal/permission"
	"github.com/codegate-ai/codegate/internal/tool"
)

// Result is the authorization verdict surfaced to the dispatcher and to any
// UI or headless runner.
type Result struct {
	Allowed bool
	// Message explains a deny.
	Message string
	// Rule is the matched rule, when one decided the outcome.
	Rule string
	// Promptable marks a deny a human could overturn.
	Promptable bool
	// Unresolved marks an ask verdict that found no interactive channel.
	Unresolved bool
	// Suggestions are candidate rules the caller may persist if it has a
	// way to ask the user.
	Suggestions []string
}

// CallSpec is one tool call submitted for authorization.
type CallSpec struct {
	Tool  tool.Tool
	Input map[string]any
	// CommandAllowedTools is the invoking slash command's allow-list.
	CommandAllowedTools []string
}

// Authorizer runs the full authorization sequence for tool calls: rule
// engine, interactive prompt on ask, then PreToolUse hooks.
type Authorizer struct {
	hooks     *hook.Runner
	prompter  Prompter
	sessionID string
}

// NewAuthorizer creates an authorizer. A nil prompter makes every ask
// verdict unresolved, which is the headless behavior.
func NewAuthorizer(hooks *hook.Runner, prompter Prompter, sessionID string) *Authorizer {
	return &Authorizer{hooks: hooks, prompter: prompter, sessionID: sessionID}
}

// Authorize resolves one call. It returns the verdict and the (possibly
// updated) permission context; interactive "don't ask again" answers persist
// rules into the returned context. The only error returned is ctx
// cancellation while awaiting a human.
//
// PreToolUse hooks run around every call except those a silent mode deny
// (dontAsk) already resolved. A hook deny overrides an allow; it never
// overrides a rule-engine deny.
func (a *Authorizer) Authorize(ctx context.Context, call CallSpec, pctx *permission.Context) (Result, *permission.Context, error) {
	toolName := call.Tool.Name()
	resource := permission.ExtractResource(toolName, call.Input)

	result := Result{Allowed: true}
	engineDenied := false

	if call.Tool.NeedsPermissions(call.Input) {
		decision := permission.Evaluate(permission.CheckRequest{
			ToolName:            toolName,
			Input:               call.Input,
			CommandAllowedTools: call.CommandAllowedTools,
		}, pctx)

		switch decision.Behavior {
		case permission.Deny:
			engineDenied = true
			result = Result{
				Message:    decision.Message,
				Rule:       decision.Rule,
				Promptable: decision.Promptable,
			}
			// A silent deny resolves the call by itself; dontAsk mode
			// promises no hooks and no prompts for suppressed calls.
			if decision.Silent {
				return result, pctx, nil
			}
		case permission.Ask:
			var err error
			result, pctx, err = a.resolveAsk(ctx, call, pctx, resource, decision)
			if err != nil {
				return Result{}, pctx, err
			}
		}
	}

	hookDecision := a.hooks.Run(ctx, hook.PreToolUse, hook.Payload{
		ToolName:  toolName,
		ToolInput: call.Input,
		SessionID: a.sessionID,
	})
	if engineDenied {
		return result, pctx, nil
	}

	switch hookDecision.Outcome {
	case hook.OutcomeDeny:
		logging.Component("authz").Info().
			Str("tool", toolName).
			Msg("hook denied tool call")
		return Result{
			Message:    hookMessage(hookDecision, toolName),
			Promptable: false,
		}, pctx, nil
	case hook.OutcomeAsk:
		if result.Allowed {
			return a.resolveHookAsk(ctx, call, pctx, resource, hookDecision)
		}
	}

	return result, pctx, nil
}

// resolveAsk handles an ask verdict from the rule engine: prompt the human
// when possible, otherwise report the call unresolved.
func (a *Authorizer) resolveAsk(ctx context.Context, call CallSpec, pctx *permission.Context, resource string, decision permission.Decision) (Result, *permission.Context, error) {
	suggestions := permission.SuggestRules(call.Tool.Name(), call.Input)

	if a.prompter == nil {
		return Result{
			Message:     "approval required",
			Promptable:  true,
			Unresolved:  true,
			Suggestions: suggestions,
		}, pctx, nil
	}

	resp, err := a.prompter.Prompt(ctx, PromptRequest{
		SessionID:   a.sessionID,
		ToolName:    call.Tool.Name(),
		Resource:    resource,
		Title:       promptTitle(call.Tool.Name(), resource),
		Suggestions: suggestions,
	})
	if err != nil {
		return Result{}, pctx, err
	}

	pctx = a.applyUpdates(pctx, resp.Remember)

	if !resp.Granted {
		message := resp.Message
		if message == "" {
			message = "permission request rejected"
		}
		return Result{Message: message, Promptable: true}, pctx, nil
	}
	return Result{Allowed: true}, pctx, nil
}

// resolveHookAsk handles a hook that downgraded an allow to ask.
func (a *Authorizer) resolveHookAsk(ctx context.Context, call CallSpec, pctx *permission.Context, resource string, decision hook.Decision) (Result, *permission.Context, error) {
	if a.prompter == nil {
		return Result{
			Message:     hookMessage(decision, call.Tool.Name()),
			Promptable:  true,
			Unresolved:  true,
			Suggestions: permission.SuggestRules(call.Tool.Name(), call.Input),
		}, pctx, nil
	}

	resp, err := a.prompter.Prompt(ctx, PromptRequest{
		SessionID: a.sessionID,
		ToolName:  call.Tool.Name(),
		Resource:  resource,
		Title:     hookMessage(decision, call.Tool.Name()),
	})
	if err != nil {
		return Result{}, pctx, err
	}
	pctx = a.applyUpdates(pctx, resp.Remember)
	if !resp.Granted {
		return Result{Message: "permission request rejected", Promptable: true}, pctx, nil
	}
	return Result{Allowed: true}, pctx, nil
}

// applyUpdates persists remembered rules into the context and emits a
// structured update per rule for the settings layer.
func (a *Authorizer) applyUpdates(pctx *permission.Context, updates []RuleUpdate) *permission.Context {
	for _, u := range updates {
		pctx = pctx.WithRules(u.Behavior, u.Source, u.Rule)
		event.Publish(event.Event{
			Type: event.RuleAdded,
			Data: event.RuleAddedData{
				SessionID: a.sessionID,
				Behavior:  string(u.Behavior),
				Source:    string(u.Source),
				Rule:      u.Rule,
			},
		})
		logging.Component("authz").Debug().
			Str("rule", u.Rule).
			Str("behavior", string(u.Behavior)).
			Str("source", string(u.Source)).
			Msg("rule persisted from interactive decision")
	}
	return pctx
}

func hookMessage(d hook.Decision, toolName string) string {
	if d.Message != "" {
		return d.Message
	}
	return "hook blocked " + toolName
}
