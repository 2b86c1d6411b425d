package event

// PermissionRequiredData is the data for permission.required events. The UI
// (or headless runner) displays the request and answers via the coordinator.
type PermissionRequiredData struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"sessionID"`
	ToolName    string   `json:"toolName"`
	Resource    string   `json:"resource,omitempty"`
	Title       string   `json:"title"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// PermissionResolvedData is the data for permission.resolved events.
type PermissionResolvedData struct {
	ID      string `json:"id"`
	Granted bool   `json:"granted"`
}

// RuleAddedData is emitted when an interactive decision persists a new rule.
// The settings layer subscribes to write it through to configuration files.
type RuleAddedData struct {
	SessionID string `json:"sessionID"`
	Behavior  string `json:"behavior"` // "allow" | "deny" | "ask"
	Source    string `json:"source"`
	Rule      string `json:"rule"`
}

// ToolCallUpdatedData carries live progress for a running tool call.
type ToolCallUpdatedData struct {
	SessionID string `json:"sessionID"`
	CallID    string `json:"callID"`
	ToolName  string `json:"toolName"`
	Status    string `json:"status"`
	Title     string `json:"title,omitempty"`
	Progress  string `json:"progress,omitempty"`
}

// ToolCallResolvedData is emitted once a call has a terminal outcome.
type ToolCallResolvedData struct {
	SessionID string `json:"sessionID"`
	CallID    string `json:"callID"`
	ToolName  string `json:"toolName"`
	Outcome   string `json:"outcome"` // "executed" | "rejected" | "cancelled"
	Message   string `json:"message,omitempty"`
}

// HookFailedData is emitted when a hook process errors, times out, or emits
// unparseable output. It is distinct from a hook deny decision.
type HookFailedData struct {
	SessionID string `json:"sessionID"`
	Event     string `json:"event"`
	Command   string `json:"command"`
	Error     string `json:"error"`
}

// TurnCompletedData is emitted when a turn reaches a terminal state.
type TurnCompletedData struct {
	SessionID string `json:"sessionID"`
	TurnID    string `json:"turnID"`
	Continued bool   `json:"continued"` // true when a Stop hook blocked completion
}
