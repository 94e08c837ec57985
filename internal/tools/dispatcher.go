package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ashureev/formfill/internal/domain"
)

// UnhandledOutput is submitted for calls naming a tool that is not registered.
// Every pending call needs an output or the remote run never resumes.
const UnhandledOutput = "Failed to handle function"

// DispatchError reports a registered tool that failed to execute.
type DispatchError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("tool %q (call %s): %v", e.Tool, e.CallID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Dispatcher holds registered tools.
type Dispatcher struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool. A tool with the same name is replaced.
func (d *Dispatcher) Register(t Tool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tools[t.Definition().Name] = t
}

// Get returns a tool by name.
func (d *Dispatcher) Get(name string) (Tool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tools[name]
	return t, ok
}

// Definitions returns all tool definitions sorted by name.
func (d *Dispatcher) Definitions() []Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	defs := make([]Definition, 0, len(d.tools))
	for _, t := range d.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch executes one tool call. Unknown tools yield UnhandledOutput
// instead of an error; only a failing registered tool returns an error.
func (d *Dispatcher) Dispatch(ctx context.Context, call domain.ToolCall) (domain.ToolOutput, error) {
	t, ok := d.Get(call.Name)
	if !ok {
		d.logger.Warn("tool not registered, submitting sentinel output", "tool", call.Name, "tool_call_id", call.ID)
		return domain.ToolOutput{ToolCallID: call.ID, Output: UnhandledOutput}, nil
	}

	out, err := t.Call(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		return domain.ToolOutput{}, &DispatchError{Tool: call.Name, CallID: call.ID, Err: err}
	}
	d.logger.Debug("tool executed", "tool", call.Name, "tool_call_id", call.ID, "output_len", len(out))
	return domain.ToolOutput{ToolCallID: call.ID, Output: out}, nil
}

// DispatchBatch executes calls in order and returns one output per call.
// It stops at the first failing tool.
func (d *Dispatcher) DispatchBatch(ctx context.Context, calls []domain.ToolCall) ([]domain.ToolOutput, error) {
	outputs := make([]domain.ToolOutput, 0, len(calls))
	for _, call := range calls {
		out, err := d.Dispatch(ctx, call)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}
