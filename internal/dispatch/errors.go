package dispatch

import "fmt"

// ArgumentRepairError means the streamed argument buffer for a call could
// not be turned into any valid input value, even after full trimming. The
// raw buffer is kept for diagnosis; the fault lies with the model's streamed
// output, not the orchestrator.
type ArgumentRepairError struct {
	CallID   string
	ToolName string
	Buffer   string
	Err      error
}

func (e *ArgumentRepairError) Error() string {
	return fmt.Sprintf("call %s (%s): unrepairable arguments %q: %v", e.CallID, e.ToolName, e.Buffer, e.Err)
}

func (e *ArgumentRepairError) Unwrap() error { return e.Err }

// ToolExecutionError wraps a failure from an authorized, started tool body.
// It is reported back to the model as conversation history, never retried by
// the dispatcher.
type ToolExecutionError struct {
	CallID   string
	ToolName string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("call %s (%s): %v", e.CallID, e.ToolName, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
