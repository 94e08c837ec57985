package tools_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/formfill/internal/domain"
	"github.com/ashureev/formfill/internal/tools"
)

type echoArgs struct {
	Text string `json:"text"`
}

func newEchoTool(name string, prefix string) tools.Tool {
	return tools.New(name, "echo", func(_ context.Context, a echoArgs) (string, error) {
		return prefix + a.Text, nil
	})
}

func TestDispatchUnknownToolReturnsSentinel(t *testing.T) {
	d := tools.NewDispatcher(nil)

	out, err := d.Dispatch(context.Background(), domain.ToolCall{ID: "call_1", Name: "missing", Arguments: `{}`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ToolCallID != "call_1" {
		t.Errorf("expected tool call id call_1, got %q", out.ToolCallID)
	}
	if out.Output != "Failed to handle function" {
		t.Errorf("expected sentinel output, got %q", out.Output)
	}
}

func TestRegisterReplacesHandler(t *testing.T) {
	d := tools.NewDispatcher(nil)
	d.Register(newEchoTool("echo", "first:"))
	d.Register(newEchoTool("echo", "second:"))

	if got := len(d.Definitions()); got != 1 {
		t.Fatalf("expected 1 definition, got %d", got)
	}
	out, err := d.Dispatch(context.Background(), domain.ToolCall{ID: "c", Name: "echo", Arguments: `{"text":"hi"}`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Output != "second:hi" {
		t.Errorf("expected replaced handler output, got %q", out.Output)
	}
}

func TestDispatchBatchKeepsOneOutputPerCall(t *testing.T) {
	d := tools.NewDispatcher(nil)
	d.Register(tools.NewFillFormsTool())

	calls := []domain.ToolCall{
		{ID: "a", Name: tools.FillFormsName, Arguments: `{"responses":"Name: Ada"}`},
		{ID: "b", Name: "unknown_tool", Arguments: `{"x":1}`},
		{ID: "c", Name: tools.FillFormsName, Arguments: `{"responses":["Email: ada@example.com"]}`},
	}
	outs, err := d.DispatchBatch(context.Background(), calls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outs) != len(calls) {
		t.Fatalf("expected %d outputs, got %d", len(calls), len(outs))
	}
	for i, call := range calls {
		if outs[i].ToolCallID != call.ID {
			t.Errorf("output %d: expected id %q, got %q", i, call.ID, outs[i].ToolCallID)
		}
	}
	if outs[1].Output != tools.UnhandledOutput {
		t.Errorf("expected sentinel for unknown tool, got %q", outs[1].Output)
	}
}

func TestDispatchMalformedArgumentsIsDispatchError(t *testing.T) {
	d := tools.NewDispatcher(nil)
	d.Register(tools.NewFillFormsTool())

	cases := map[string]string{
		"not json":        `{"responses":`,
		"missing field":   `{}`,
		"wrong shape":     `{"responses":42}`,
		"blank responses": `{"responses":"   "}`,
		"empty arguments": ``,
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), domain.ToolCall{ID: "x", Name: tools.FillFormsName, Arguments: args})
			var dispatchErr *tools.DispatchError
			if !errors.As(err, &dispatchErr) {
				t.Fatalf("expected DispatchError, got %v", err)
			}
			if !errors.Is(err, tools.ErrInvalidArguments) {
				t.Errorf("expected ErrInvalidArguments, got %v", err)
			}
			if dispatchErr.CallID != "x" || dispatchErr.Tool != tools.FillFormsName {
				t.Errorf("unexpected error fields: %+v", dispatchErr)
			}
		})
	}
}

func TestDispatchHandlerErrorIsDispatchError(t *testing.T) {
	boom := errors.New("boom")
	d := tools.NewDispatcher(nil)
	d.Register(tools.New("fails", "always fails", func(context.Context, echoArgs) (string, error) {
		return "", boom
	}))

	_, err := d.DispatchBatch(context.Background(), []domain.ToolCall{{ID: "1", Name: "fails", Arguments: `{}`}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
}
