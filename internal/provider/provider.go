// Package provider abstracts the LLM backends behind a single chat-completion
// interface. Two adapters exist: Anthropic Messages and OpenAI-compatible
// chat completions.
package provider

import (
	"context"
	"fmt"
)

// Message is a provider-neutral conversation message. Role is one of
// "system", "user", "assistant", or "tool". Assistant messages may carry
// ToolCalls; tool messages carry the results in ToolCalls[i].Result keyed
// by the originating call ID.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
	IsError   bool           `json:"isError,omitempty"`
}

// ToolDefinition describes a callable tool in the shape providers expect:
// a name, a description, and a JSON Schema parameters object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type Response struct {
	Message    Message
	Usage      Usage
	StopReason string
}

// HasToolCalls reports whether the assistant requested tool execution.
func (r *Response) HasToolCalls() bool {
	return r != nil && len(r.Message.ToolCalls) > 0
}

type Provider interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// Error kinds, in rough order of severity.
const (
	KindAuth           = "auth"
	KindRateLimit      = "rate_limit"
	KindInvalidRequest = "invalid_request"
	KindTransient      = "transient"
)

// Error is a classified provider failure. Retryable failures (rate limits,
// 5xx, network timeouts) are already retried inside the adapters; an Error
// surfacing to the caller means retries were exhausted or the failure is
// terminal.
type Error struct {
	Kind      string
	Status    int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config selects and configures a backend adapter.
type Config struct {
	Type        string // "anthropic" (default) or "openai"
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	MaxRetries  int
	Temperature *float64
}

// New returns the adapter for cfg.Type.
func New(cfg Config) (Provider, error) {
	switch cfg.Type {
	case "", "anthropic":
		return NewAnthropic(cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
