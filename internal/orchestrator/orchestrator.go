// Package orchestrator drives assistant runs from creation to a settled state.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/formfill/internal/assistant"
	"github.com/ashureev/formfill/internal/domain"
)

// replyScanLimit is how many recent messages are searched for the assistant reply.
const replyScanLimit = 20

// Dispatcher executes the tool calls of one action-required batch.
type Dispatcher interface {
	DispatchBatch(ctx context.Context, calls []domain.ToolCall) ([]domain.ToolOutput, error)
}

// Options bounds the settle loop.
type Options struct {
	PollInterval    time.Duration
	PollTimeout     time.Duration // zero disables the overall deadline
	MaxActionRounds int
}

// DefaultOptions returns default loop bounds.
func DefaultOptions() Options {
	return Options{
		PollInterval:    500 * time.Millisecond,
		PollTimeout:     2 * time.Minute,
		MaxActionRounds: 8,
	}
}

// Session identifies the conversation and assistant of one call.
type Session struct {
	ThreadID     string
	AssistantID  string
	Instructions string
}

// Invocation records one dispatched tool call and the output submitted for it.
type Invocation struct {
	Round  int
	Call   domain.ToolCall
	Output domain.ToolOutput
}

// Reply is the result of a settled run.
type Reply struct {
	ThreadID    string
	RunID       string
	Status      domain.RunStatus
	Text        string
	Rounds      int
	Invocations []Invocation
}

// Orchestrator runs assistants against threads.
// It holds no per-conversation state and is safe for concurrent use across threads.
// Concurrent calls on the same thread are the caller's responsibility.
type Orchestrator struct {
	client assistant.Client
	tools  Dispatcher
	opts   Options
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator.
func New(client assistant.Client, dispatcher Dispatcher, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxActionRounds <= 0 {
		opts.MaxActionRounds = DefaultOptions().MaxActionRounds
	}
	return &Orchestrator{
		client: client,
		tools:  dispatcher,
		opts:   opts,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Execute appends content as a user message, starts one run and settles it.
func (o *Orchestrator) Execute(ctx context.Context, sess Session, content string) (*Reply, error) {
	if sess.ThreadID == "" || sess.AssistantID == "" {
		return nil, MissingParameter("thread and assistant are required")
	}

	if _, err := o.client.CreateMessage(ctx, sess.ThreadID, domain.RoleUser, content); err != nil {
		return nil, &Error{Kind: KindRemoteService, Op: "create message", ThreadID: sess.ThreadID, Err: err}
	}

	run, err := o.client.CreateRun(ctx, sess.ThreadID, assistant.RunRequest{
		AssistantID:  sess.AssistantID,
		Instructions: sess.Instructions,
	})
	if err != nil {
		return nil, &Error{Kind: KindRemoteService, Op: "create run", ThreadID: sess.ThreadID, Err: err}
	}

	o.logger.Info("Run started",
		"thread_id", sess.ThreadID,
		"assistant_id", sess.AssistantID,
		"run_id", run.ID,
		"status", run.Status,
		"content_length", len(content),
	)
	return o.Settle(ctx, sess, run)
}

// settleState is the tagged state of the settle loop.
type settleState int

const (
	statePolling settleState = iota
	stateActionRequired
	stateSettled
	stateFailed
)

func stateFor(status domain.RunStatus) settleState {
	switch {
	case status == domain.RunStatusCompleted:
		return stateSettled
	case status == domain.RunStatusRequiresAction:
		return stateActionRequired
	case status.IsTerminal():
		return stateFailed
	default:
		return statePolling
	}
}

// Settle drives run until it completes or fails. Each action round
// dispatches the pending tool calls and submits their outputs as one batch.
// A terminal status is never followed by another retrieval.
func (o *Orchestrator) Settle(ctx context.Context, sess Session, run domain.Run) (*Reply, error) {
	if o.opts.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.PollTimeout)
		defer cancel()
	}

	reply := &Reply{ThreadID: sess.ThreadID, RunID: run.ID}
	fail := func(kind Kind, op string, err error) (*Reply, error) {
		o.logger.Warn("Run failed",
			"thread_id", sess.ThreadID,
			"run_id", run.ID,
			"status", run.Status,
			"kind", kind,
			"rounds", reply.Rounds,
			"error", err,
		)
		return nil, &Error{
			Kind:     kind,
			Op:       op,
			ThreadID: sess.ThreadID,
			RunID:    run.ID,
			Status:   run.Status,
			Rounds:   reply.Rounds,
			Err:      err,
		}
	}

	for {
		reply.Status = run.Status

		switch stateFor(run.Status) {
		case statePolling:
			if err := o.sleep(ctx, o.opts.PollInterval); err != nil {
				return fail(KindRemoteService, "poll run", err)
			}
			next, err := o.client.RetrieveRun(ctx, sess.ThreadID, run.ID)
			if err != nil {
				return fail(KindRemoteService, "poll run", err)
			}
			run = next

		case stateActionRequired:
			if reply.Rounds >= o.opts.MaxActionRounds {
				return fail(KindRunStuck, "resolve actions", fmt.Errorf("%w (%d)", ErrRoundLimit, o.opts.MaxActionRounds))
			}
			reply.Rounds++

			outputs, err := o.tools.DispatchBatch(ctx, run.ToolCalls)
			if err != nil {
				return fail(KindToolDispatch, "dispatch tools", err)
			}
			if err := verifyBatch(run.ToolCalls, outputs); err != nil {
				return fail(KindSubmission, "verify tool outputs", err)
			}

			o.logger.Info("Submitting tool outputs",
				"thread_id", sess.ThreadID,
				"run_id", run.ID,
				"round", reply.Rounds,
				"tool_calls", len(outputs),
			)
			reply.Invocations = append(reply.Invocations, pairInvocations(reply.Rounds, run.ToolCalls, outputs)...)

			next, err := o.client.SubmitToolOutputs(ctx, sess.ThreadID, run.ID, outputs)
			if err != nil {
				return fail(KindSubmission, "submit tool outputs", err)
			}
			run = next

		case stateSettled:
			text, err := o.latestReply(ctx, sess.ThreadID)
			if err != nil {
				return fail(KindRemoteService, "fetch reply", err)
			}
			reply.Text = text
			o.logger.Info("Run completed",
				"thread_id", sess.ThreadID,
				"run_id", run.ID,
				"rounds", reply.Rounds,
				"reply_length", len(text),
			)
			return reply, nil

		case stateFailed:
			err := ErrRunEnded
			if run.LastError != "" {
				err = fmt.Errorf("%w: %s", ErrRunEnded, run.LastError)
			}
			return fail(KindRunTerminal, "settle run", err)
		}
	}
}

// latestReply returns the text of the most recent assistant message.
func (o *Orchestrator) latestReply(ctx context.Context, threadID string) (string, error) {
	msgs, err := o.client.ListMessages(ctx, threadID, replyScanLimit)
	if err != nil {
		return "", err
	}
	for _, msg := range msgs {
		if msg.Role == domain.RoleAssistant {
			return strings.Join(msg.Text, "\n\n"), nil
		}
	}
	return "", ErrNoReply
}

// verifyBatch checks that outputs answer every pending call exactly once.
func verifyBatch(calls []domain.ToolCall, outputs []domain.ToolOutput) error {
	if len(calls) == 0 {
		return ErrEmptyBatch
	}
	pending := make(map[string]bool, len(calls))
	for _, c := range calls {
		if pending[c.ID] {
			return fmt.Errorf("%w: duplicate tool call id %q", ErrBatchMismatch, c.ID)
		}
		pending[c.ID] = true
	}
	if len(outputs) != len(pending) {
		return fmt.Errorf("%w: %d outputs for %d calls", ErrBatchMismatch, len(outputs), len(pending))
	}
	for _, out := range outputs {
		if !pending[out.ToolCallID] {
			return fmt.Errorf("%w: unexpected or repeated output for %q", ErrBatchMismatch, out.ToolCallID)
		}
		delete(pending, out.ToolCallID)
	}
	return nil
}

func pairInvocations(round int, calls []domain.ToolCall, outputs []domain.ToolOutput) []Invocation {
	byID := make(map[string]domain.ToolOutput, len(outputs))
	for _, out := range outputs {
		byID[out.ToolCallID] = out
	}
	invs := make([]Invocation, 0, len(calls))
	for _, c := range calls {
		invs = append(invs, Invocation{Round: round, Call: c, Output: byID[c.ID]})
	}
	return invs
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
