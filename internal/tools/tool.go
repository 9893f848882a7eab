// Package tools implements the agent's tool surface: filesystem access,
// shell execution, and web search/fetch, all behind a validating registry.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is an executable capability exposed to the agent.
type Tool interface {
	// Name returns the unique identifier of the tool.
	Name() string

	// Description gives a short human readable summary.
	Description() string

	// Schema describes the tool parameters. Nil means no input expected.
	Schema() *JSONSchema

	// Execute runs the tool with validated parameters. Failures are
	// reported in the Result, never as panics.
	Execute(ctx context.Context, params map[string]any) *Result
}

// JSONSchema captures the subset of JSON Schema used for tool parameters.
type JSONSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Enum        []any                  `json:"enum,omitempty"`
	Pattern     string                 `json:"pattern,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
}

// Map renders the schema as a generic JSON object for provider payloads.
func (s *JSONSchema) Map() map[string]any {
	if s == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// Result is the outcome of a tool invocation. IsError marks failures the
// model should see; the Output text is returned to it either way.
type Result struct {
	Output  string
	IsError bool
}

func Text(format string, args ...any) *Result {
	return &Result{Output: fmt.Sprintf(format, args...)}
}

func Errorf(format string, args ...any) *Result {
	return &Result{Output: fmt.Sprintf(format, args...), IsError: true}
}
