package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codegate-ai/codegate/internal/authz"
	"github.com/codegate-ai/codegate/internal/hook"
	"github.com/codegate-ai/codegate/internal/permission"
	"github.com/codegate-ai/codegate/internal/tool"
)

// fakeTool is a scriptable Tool for dispatcher tests.
type fakeTool struct {
	name      string
	safe      bool
	needsPerm bool
	execute   func(ctx context.Context, input map[string]any) (*tool.Result, error)
}

func (f *fakeTool) Name() string                                { return f.name }
func (f *fakeTool) Description() string                         { return f.name }
func (f *fakeTool) Parameters() json.RawMessage                 { return json.RawMessage(`{}`) }
func (f *fakeTool) IsReadOnly(input map[string]any) bool        { return f.safe }
func (f *fakeTool) IsConcurrencySafe(input map[string]any) bool { return f.safe }
func (f *fakeTool) NeedsPermissions(input map[string]any) bool  { return f.needsPerm }
func (f *fakeTool) ValidateInput(input map[string]any) error {
	if bad, _ := input["bad"].(bool); bad {
		return fmt.Errorf("bad input")
	}
	return nil
}

func (f *fakeTool) Run(ctx context.Context, input map[string]any, tc *tool.Context) <-chan tool.ExecEvent {
	ch := make(chan tool.ExecEvent, 1)
	go func() {
		defer close(ch)
		execute := f.execute
		if execute == nil {
			execute = func(ctx context.Context, input map[string]any) (*tool.Result, error) {
				return &tool.Result{Title: f.name, Output: "done"}, nil
			}
		}
		result, err := execute(ctx, input)
		if err != nil {
			ch <- tool.ExecEvent{Terminal: true, Err: err}
			return
		}
		ch <- tool.ExecEvent{Terminal: true, Result: result}
	}()
	return ch
}

func newDispatcher(t *testing.T, tools []tool.Tool, prompter authz.Prompter, hookCfg hook.Config) *Dispatcher {
	t.Helper()
	registry := tool.NewRegistry(t.TempDir())
	for _, tl := range tools {
		registry.Register(tl)
	}
	hooks := hook.NewRunner(hookCfg, "")
	a := authz.NewAuthorizer(hooks, prompter, "s1")
	return NewDispatcher(registry, a, hooks, "s1", t.TempDir())
}

func completeRequest(t *testing.T, id, toolName, args string) *Request {
	t.Helper()
	r := NewRequest(id, toolName)
	require.NoError(t, r.AppendArguments(args))
	return r
}

func TestRequestStreaming(t *testing.T) {
	r := NewRequest("c1", "Bash")
	require.NoError(t, r.AppendArguments(`{"command": "py`))

	// The unterminated string value is dropped, never partially kept.
	assert.Empty(t, r.Preview())
	assert.False(t, r.IsInputComplete())

	require.NoError(t, r.AppendArguments(`thon3 -V"}`))
	input, err := r.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "python3 -V", input["command"])
	assert.True(t, r.IsInputComplete())

	assert.Error(t, r.AppendArguments("more"), "finalized request rejects chunks")

	again, err := r.Finalize()
	require.NoError(t, err)
	assert.Equal(t, input, again)
}

func TestRequestFinalizeEmptyBuffer(t *testing.T) {
	r := NewRequest("c1", "List")
	input, err := r.Finalize()
	require.NoError(t, err)
	assert.Empty(t, input)
}

func TestRequestFinalizeNonObject(t *testing.T) {
	r := NewRequest("c1", "Bash")
	require.NoError(t, r.AppendArguments(`[1,2,3]`))

	_, err := r.Finalize()
	var repairErr *ArgumentRepairError
	require.ErrorAs(t, err, &repairErr)
	assert.Equal(t, "c1", repairErr.CallID)
	assert.Equal(t, `[1,2,3]`, repairErr.Buffer)
}

func TestDispatchSingleAllowedCall(t *testing.T) {
	d := newDispatcher(t, []tool.Tool{&fakeTool{name: "Trace", safe: true}}, nil, hook.Config{})

	result, _ := d.Dispatch(context.Background(),
		[]*Request{completeRequest(t, "c1", "Trace", `{}`)},
		permission.NewContext())

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, OutcomeExecuted, result.Outcomes[0].Kind)
	assert.Equal(t, "done", result.Outcomes[0].Result.Output)
	assert.False(t, result.Continue)
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newDispatcher(t, []tool.Tool{&fakeTool{name: "Trace", safe: true}}, nil, hook.Config{})

	result, _ := d.Dispatch(context.Background(),
		[]*Request{completeRequest(t, "c1", "Trac", `{}`)},
		permission.NewContext())

	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, OutcomeRejected, result.Outcomes[0].Kind)
	assert.Contains(t, result.Outcomes[0].Message, "did you mean Trace?")
}

func TestDispatchInvalidInput(t *testing.T) {
	d := newDispatcher(t, []tool.Tool{&fakeTool{name: "Trace", safe: true}}, nil, hook.Config{})

	result, _ := d.Dispatch(context.Background(),
		[]*Request{completeRequest(t, "c1", "Trace", `{"bad": true}`)},
		permission.NewContext())

	assert.Equal(t, OutcomeRejected, result.Outcomes[0].Kind)
	assert.Contains(t, result.Outcomes[0].Message, "invalid input")
}

func TestDispatchDenyRule(t *testing.T) {
	d := newDispatcher(t, []tool.Tool{&fakeTool{name: "Bash", needsPerm: true}}, nil, hook.Config{})
	pctx := permission.NewContext().WithRules(permission.Deny, permission.SourceProjectSettings, "Bash(rm:*)")

	result, _ := d.Dispatch(context.Background(),
		[]*Request{completeRequest(t, "c1", "Bash", `{"command": "rm -rf /tmp/x"}`)},
		pctx)

	assert.Equal(t, OutcomeRejected, result.Outcomes[0].Kind)
	assert.False(t, result.Outcomes[0].Promptable)
}

func TestDispatchToolError(t *testing.T) {
	boom := &fakeTool{
		name: "Trace",
		safe: true,
		execute: func(ctx context.Context, input map[string]any) (*tool.Result, error) {
			return nil, fmt.Errorf("exploded")
		},
	}
	d := newDispatcher(t, []tool.Tool{boom}, nil, hook.Config{})

	result, _ := d.Dispatch(context.Background(),
		[]*Request{completeRequest(t, "c1", "Trace", `{}`)},
		permission.NewContext())

	outcome := result.Outcomes[0]
	assert.Equal(t, OutcomeExecuted, outcome.Kind)
	var execErr *ToolExecutionError
	require.ErrorAs(t, outcome.Err, &execErr)
	assert.Equal(t, "c1", execErr.CallID)
}

func TestDispatchParallelGroup(t *testing.T) {
	var active, peak int32
	slowSafe := func(ctx context.Context, input map[string]any) (*tool.Result, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return &tool.Result{Output: "ok"}, nil
	}
	d := newDispatcher(t, []tool.Tool{
		&fakeTool{name: "SafeA", safe: true, execute: slowSafe},
		&fakeTool{name: "SafeB", safe: true, execute: slowSafe},
	}, nil, hook.Config{})

	result, _ := d.Dispatch(context.Background(), []*Request{
		completeRequest(t, "c1", "SafeA", `{}`),
		completeRequest(t, "c2", "SafeB", `{}`),
	}, permission.NewContext())

	assert.Equal(t, OutcomeExecuted, result.Outcomes[0].Kind)
	assert.Equal(t, OutcomeExecuted, result.Outcomes[1].Kind)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(2), "safe calls should overlap")
}

func TestDispatchUnsafeCallWaitsForPriorCalls(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string, delay time.Duration) func(context.Context, map[string]any) (*tool.Result, error) {
		return func(ctx context.Context, input map[string]any) (*tool.Result, error) {
			time.Sleep(delay)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return &tool.Result{Output: name}, nil
		}
	}
	d := newDispatcher(t, []tool.Tool{
		&fakeTool{name: "Slow", safe: true, execute: record("Slow", 60*time.Millisecond)},
		&fakeTool{name: "Mutator", safe: false, execute: record("Mutator", 0)},
	}, nil, hook.Config{})

	result, _ := d.Dispatch(context.Background(), []*Request{
		completeRequest(t, "c1", "Slow", `{}`),
		completeRequest(t, "c2", "Mutator", `{}`),
	}, permission.NewContext())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"Slow", "Mutator"}, order, "unsafe call starts only after prior calls resolve")
	assert.Equal(t, "Slow", result.Outcomes[0].Result.Output)
	assert.Equal(t, "Mutator", result.Outcomes[1].Result.Output)
}

func TestDispatchCancelledBeforeStart(t *testing.T) {
	d := newDispatcher(t, []tool.Tool{&fakeTool{name: "Trace", safe: true}}, nil, hook.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, _ := d.Dispatch(ctx, []*Request{
		completeRequest(t, "c1", "Trace", `{}`),
		completeRequest(t, "c2", "Trace", `{}`),
	}, permission.NewContext())

	require.Len(t, result.Outcomes, 2)
	for _, o := range result.Outcomes {
		assert.Equal(t, OutcomeCancelled, o.Kind)
	}
	assert.False(t, result.Continue)
}

func TestDispatchCancelDuringExecution(t *testing.T) {
	started := make(chan struct{})
	blocker := &fakeTool{
		name: "Blocker",
		safe: false,
		execute: func(ctx context.Context, input map[string]any) (*tool.Result, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	d := newDispatcher(t, []tool.Tool{blocker}, nil, hook.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	result, _ := d.Dispatch(ctx, []*Request{
		completeRequest(t, "c1", "Blocker", `{}`),
	}, permission.NewContext())

	assert.Equal(t, OutcomeCancelled, result.Outcomes[0].Kind)
}

func TestDispatchStopHookBlocksCompletion(t *testing.T) {
	cfg := hook.Config{
		hook.Stop: []hook.Matcher{{
			Hooks: []hook.Hook{{Command: `echo '{"decision":"block","reason":"run the tests first"}'`}},
		}},
	}
	d := newDispatcher(t, []tool.Tool{&fakeTool{name: "Trace", safe: true}}, nil, cfg)

	result, _ := d.Dispatch(context.Background(),
		[]*Request{completeRequest(t, "c1", "Trace", `{}`)},
		permission.NewContext())

	assert.True(t, result.Continue)
	assert.Equal(t, "run the tests first", result.Instruction)
}

func TestDispatchStopHookApproval(t *testing.T) {
	cfg := hook.Config{
		hook.Stop: []hook.Matcher{{
			Hooks: []hook.Hook{{Command: `echo '{}'`}},
		}},
	}
	d := newDispatcher(t, []tool.Tool{&fakeTool{name: "Trace", safe: true}}, nil, cfg)

	result, _ := d.Dispatch(context.Background(),
		[]*Request{completeRequest(t, "c1", "Trace", `{}`)},
		permission.NewContext())

	assert.False(t, result.Continue)
	assert.Empty(t, result.Instruction)
}

// A mid-turn "always allow" answer must apply to later calls in the same
// turn without a second prompt, and never retroactively change earlier
// outcomes.
func TestDispatchMidTurnRulePersistence(t *testing.T) {
	var prompts int32
	prompter := authz.PromptFunc(func(ctx context.Context, req authz.PromptRequest) (authz.PromptResponse, error) {
		atomic.AddInt32(&prompts, 1)
		return authz.PromptResponse{
			Granted: true,
			Remember: []authz.RuleUpdate{{
				Behavior: permission.Allow,
				Source:   permission.SourceSession,
				Rule:     "Bash(python3:*)",
			}},
		}, nil
	})
	d := newDispatcher(t, []tool.Tool{&fakeTool{name: "Bash", needsPerm: true}}, prompter, hook.Config{})

	result, pctx := d.Dispatch(context.Background(), []*Request{
		completeRequest(t, "c1", "Bash", `{"command": "python3 -V"}`),
		completeRequest(t, "c2", "Bash", `{"command": "python3 --help"}`),
	}, permission.NewContext())

	assert.Equal(t, OutcomeExecuted, result.Outcomes[0].Kind)
	assert.Equal(t, OutcomeExecuted, result.Outcomes[1].Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&prompts), "persisted rule covers the second call")
	assert.Equal(t, []string{"Bash(python3:*)"}, pctx.Rules(permission.Allow, permission.SourceSession))
}

// Rules remembered through a prompt inside a parallel group must survive
// into the turn's returned context, same as in the sequential path.
func TestDispatchParallelGroupKeepsRememberedRules(t *testing.T) {
	prompter := authz.PromptFunc(func(ctx context.Context, req authz.PromptRequest) (authz.PromptResponse, error) {
		return authz.PromptResponse{
			Granted: true,
			Remember: []authz.RuleUpdate{{
				Behavior: permission.Allow,
				Source:   permission.SourceSession,
				Rule:     "Fetch(api.example.com)",
			}},
		}, nil
	})
	// The hook downgrades an engine allow to ask, so the prompt fires inside
	// the parallel group.
	cfg := hook.Config{
		hook.PreToolUse: []hook.Matcher{{
			Matcher: "Fetch",
			Hooks: []hook.Hook{{
				Command: `echo '{"hookSpecificOutput":{"hookEventName":"PreToolUse","permissionDecision":"ask"}}'`,
			}},
		}},
	}
	pctx := permission.NewContext().WithRules(permission.Allow, permission.SourceUserSettings, "Fetch")
	d := newDispatcher(t, []tool.Tool{&fakeTool{name: "Fetch", safe: true, needsPerm: true}}, prompter, cfg)

	result, pctx := d.Dispatch(context.Background(), []*Request{
		completeRequest(t, "c1", "Fetch", `{"url": "https://api.example.com/a"}`),
		completeRequest(t, "c2", "Fetch", `{"url": "https://api.example.com/b"}`),
	}, pctx)

	assert.Equal(t, OutcomeExecuted, result.Outcomes[0].Kind)
	assert.Equal(t, OutcomeExecuted, result.Outcomes[1].Kind)
	assert.Equal(t, []string{"Fetch(api.example.com)"}, pctx.Rules(permission.Allow, permission.SourceSession))
}

func TestDispatchHeadlessAskIsPromptableRejection(t *testing.T) {
	d := newDispatcher(t, []tool.Tool{&fakeTool{name: "Bash", needsPerm: true}}, nil, hook.Config{})

	result, _ := d.Dispatch(context.Background(),
		[]*Request{completeRequest(t, "c1", "Bash", `{"command": "make install"}`)},
		permission.NewContext())

	outcome := result.Outcomes[0]
	assert.Equal(t, OutcomeRejected, outcome.Kind)
	assert.True(t, outcome.Promptable)
}

func TestDispatchPreToolUseHookDenyPreventsExecution(t *testing.T) {
	var ran int32
	guarded := &fakeTool{
		name:      "Bash",
		needsPerm: true,
		execute: func(ctx context.Context, input map[string]any) (*tool.Result, error) {
			atomic.AddInt32(&ran, 1)
			return &tool.Result{Output: "ran"}, nil
		},
	}
	cfg := hook.Config{
		hook.PreToolUse: []hook.Matcher{{
			Matcher: "Bash",
			Hooks: []hook.Hook{{
				Command: `echo '{"hookSpecificOutput":{"hookEventName":"PreToolUse","permissionDecision":"deny","permissionDecisionReason":"nope"}}'`,
			}},
		}},
	}
	pctx := permission.NewContext().WithRules(permission.Allow, permission.SourceUserSettings, "Bash(ls:*)")
	d := newDispatcher(t, []tool.Tool{guarded}, nil, cfg)

	result, _ := d.Dispatch(context.Background(),
		[]*Request{completeRequest(t, "c1", "Bash", `{"command": "ls"}`)},
		pctx)

	assert.Equal(t, OutcomeRejected, result.Outcomes[0].Kind)
	assert.Equal(t, "nope", result.Outcomes[0].Message)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran), "tool body must never start")
}

func TestDispatchResultsInRequestOrder(t *testing.T) {
	make1 := func(name string, delay time.Duration) tool.Tool {
		return &fakeTool{name: name, safe: true, execute: func(ctx context.Context, input map[string]any) (*tool.Result, error) {
			time.Sleep(delay)
			return &tool.Result{Output: name}, nil
		}}
	}
	d := newDispatcher(t, []tool.Tool{
		make1("A", 60*time.Millisecond),
		make1("B", 0),
		make1("C", 30*time.Millisecond),
	}, nil, hook.Config{})

	result, _ := d.Dispatch(context.Background(), []*Request{
		completeRequest(t, "c1", "A", `{}`),
		completeRequest(t, "c2", "B", `{}`),
		completeRequest(t, "c3", "C", `{}`),
	}, permission.NewContext())

	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, "A", result.Outcomes[0].Result.Output)
	assert.Equal(t, "B", result.Outcomes[1].Result.Output)
	assert.Equal(t, "C", result.Outcomes[2].Result.Output)
}
