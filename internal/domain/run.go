package domain

// RunStatus is the lifecycle status reported by the remote service for a run.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"
)

// IsTerminal reports whether no further transition can happen for the run.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired, RunStatusIncomplete:
		return true
	default:
		return false
	}
}

// IsTransient reports whether the remote service is still working on the run.
// Unknown statuses are treated as transient so the caller keeps polling.
func (s RunStatus) IsTransient() bool {
	return !s.IsTerminal() && s != RunStatusRequiresAction
}

// Run is one execution of an assistant against a thread.
type Run struct {
	ID          string
	ThreadID    string
	AssistantID string
	Status      RunStatus
	// ToolCalls is populated only when Status is requires_action.
	ToolCalls []ToolCall
	LastError string
}

// ToolCall is a function invocation requested by the remote assistant.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON as sent by the remote service
}

// ToolOutput answers exactly one ToolCall of an action-required batch.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}
