package orchestrator

import (
	"errors"
	"fmt"

	"github.com/ashureev/formfill/internal/domain"
)

// Kind classifies orchestration failures.
type Kind string

const (
	// KindMissingParameter means a required request field was absent.
	KindMissingParameter Kind = "missing_parameter"
	// KindRemoteService means a call to the remote service failed or timed out.
	KindRemoteService Kind = "remote_service_error"
	// KindSubmission means a tool output batch was invalid or rejected.
	KindSubmission Kind = "submission_failure"
	// KindRunTerminal means the run ended failed, cancelled, expired or incomplete.
	KindRunTerminal Kind = "run_terminal_failure"
	// KindRunStuck means the run kept requiring action past the round limit.
	KindRunStuck Kind = "run_stuck"
	// KindToolDispatch means a registered tool failed to execute.
	KindToolDispatch Kind = "tool_dispatch_error"
)

var (
	// ErrRoundLimit is wrapped by KindRunStuck errors.
	ErrRoundLimit = errors.New("action round limit exceeded")
	// ErrEmptyBatch is wrapped when a run requires action without tool calls.
	ErrEmptyBatch = errors.New("run requires action but reported no tool calls")
	// ErrBatchMismatch is wrapped when outputs do not match the pending call ids one to one.
	ErrBatchMismatch = errors.New("tool outputs do not match pending tool calls")
	// ErrNoReply is wrapped when a completed run left no assistant message.
	ErrNoReply = errors.New("no assistant message in thread")
	// ErrRunEnded is wrapped by KindRunTerminal errors.
	ErrRunEnded = errors.New("run ended without completing")
)

// Error is returned by every orchestrator operation that fails.
type Error struct {
	Kind     Kind
	Op       string
	ThreadID string
	RunID    string
	Status   domain.RunStatus
	Rounds   int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.RunID != "" {
		msg += " (run " + e.RunID
		if e.Status != "" {
			msg += ", status " + string(e.Status)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an orchestration error, or "" for other errors.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

// MissingParameter builds a KindMissingParameter error with a client facing message.
func MissingParameter(message string) *Error {
	return &Error{Kind: KindMissingParameter, Op: "validate request", Err: errors.New(message)}
}
