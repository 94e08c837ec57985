package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArguments is returned when a tool call's payload does not match
// the tool's expected shape.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Definition describes a tool to the remote assistant.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Tool is a locally executed function the assistant may call.
type Tool interface {
	// Definition returns the name, description and parameter schema.
	Definition() Definition
	// Call decodes args and runs the handler.
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// Validator is implemented by argument structs with constraints beyond JSON types.
type Validator interface {
	Validate() error
}

// typedTool binds a handler to the argument struct it expects.
type typedTool[T any] struct {
	def     Definition
	handler func(ctx context.Context, args T) (string, error)
}

// New builds a Tool whose arguments are decoded into T before the handler runs.
// The parameter schema is generated from T.
func New[T any](name, description string, handler func(ctx context.Context, args T) (string, error)) Tool {
	return &typedTool[T]{
		def: Definition{
			Name:        name,
			Description: description,
			Parameters:  GenerateSchema[T](),
		},
		handler: handler,
	}
}

func (t *typedTool[T]) Definition() Definition {
	return t.def
}

func (t *typedTool[T]) Call(ctx context.Context, args json.RawMessage) (string, error) {
	parsed, err := decodeArgs[T](args)
	if err != nil {
		return "", err
	}
	return t.handler(ctx, parsed)
}

func decodeArgs[T any](args json.RawMessage) (T, error) {
	var out T
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
		}
	}
	return out, nil
}
