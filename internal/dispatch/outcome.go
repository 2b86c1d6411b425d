package dispatch

import "github.com/codegate-ai/codegate/internal/tool"

// State is one call's position in its lifecycle.
type State string

const (
	StatePending     State = "pending"
	StateAuthorizing State = "authorizing"
	StateExecuting   State = "executing"
	StateRejected    State = "rejected"
	StateResolved    State = "resolved"
)

// OutcomeKind classifies a call's terminal entry in conversation history.
type OutcomeKind string

const (
	OutcomeExecuted  OutcomeKind = "executed"
	OutcomeRejected  OutcomeKind = "rejected"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the terminal record for one call. Every request in a turn gets
// exactly one, in the model's request order.
type Outcome struct {
	CallID   string
	ToolName string
	Kind     OutcomeKind

	// Result is set for executed calls that produced a result.
	Result *tool.Result
	// Err is set for executed calls whose tool body failed.
	Err error
	// Message explains a rejection.
	Message string
	// Promptable marks a rejection a human could overturn.
	Promptable bool
}

// TurnResult is the aggregate of one dispatched turn.
type TurnResult struct {
	TurnID   string
	Outcomes []Outcome
	// Continue is set when a Stop hook blocked turn completion.
	Continue bool
	// Instruction is the synthetic next instruction injected by a blocking
	// Stop hook.
	Instruction string
}
