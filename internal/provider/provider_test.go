package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
)

type fakeAnthropicMessages struct {
	newMsg   *anthropicsdk.Message
	newErr   error
	failures int
	calls    int
	lastReq  anthropicsdk.MessageNewParams
}

func (f *fakeAnthropicMessages) New(ctx context.Context, params anthropicsdk.MessageNewParams, opts ...anthropicoption.RequestOption) (*anthropicsdk.Message, error) {
	f.calls++
	f.lastReq = params
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient failure")
	}
	if f.newErr != nil {
		return nil, f.newErr
	}
	return f.newMsg, nil
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropic(Config{}); err == nil {
		t.Fatal("expected api key error")
	}
	if _, err := NewOpenAI(Config{}); err == nil {
		t.Fatal("expected api key error")
	}
}

func TestNewUnknownType(t *testing.T) {
	if _, err := New(Config{Type: "gemini", APIKey: "k"}); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestAnthropicChatText(t *testing.T) {
	msgs := &fakeAnthropicMessages{newMsg: &anthropicsdk.Message{
		Role:       "assistant",
		StopReason: "end_turn",
		Content: []anthropicsdk.ContentBlockUnion{
			{Type: "text", Text: "hello there"},
		},
	}}
	p := &anthropicProvider{msgs: msgs, model: defaultAnthropicModel, maxTokens: 100, maxRetries: 1}

	resp, err := p.Chat(context.Background(), Request{
		System:   "you are helpful",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Message.Content != "hello there" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.HasToolCalls() {
		t.Error("unexpected tool calls")
	}
	if len(msgs.lastReq.System) != 1 {
		t.Errorf("system blocks = %d, want 1", len(msgs.lastReq.System))
	}
}

func TestAnthropicChatToolUse(t *testing.T) {
	input, _ := json.Marshal(map[string]any{"path": "notes.md"})
	msgs := &fakeAnthropicMessages{newMsg: &anthropicsdk.Message{
		Role:       "assistant",
		StopReason: "tool_use",
		Content: []anthropicsdk.ContentBlockUnion{
			{Type: "text", Text: "reading"},
			{Type: "tool_use", ID: "call_1", Name: "read_file", Input: input},
		},
	}}
	p := &anthropicProvider{msgs: msgs, model: defaultAnthropicModel, maxTokens: 100, maxRetries: 1}

	resp, err := p.Chat(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "read my notes"}},
		Tools:    []ToolDefinition{{Name: "read_file", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if !resp.HasToolCalls() {
		t.Fatal("expected tool calls")
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "read_file" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Arguments["path"] != "notes.md" {
		t.Errorf("arguments = %v", tc.Arguments)
	}
	if len(msgs.lastReq.Tools) != 1 {
		t.Errorf("request tools = %d, want 1", len(msgs.lastReq.Tools))
	}
}

func TestAnthropicRetriesTransient(t *testing.T) {
	msgs := &fakeAnthropicMessages{
		failures: 2,
		newMsg: &anthropicsdk.Message{
			Role:    "assistant",
			Content: []anthropicsdk.ContentBlockUnion{{Type: "text", Text: "ok"}},
		},
	}
	p := &anthropicProvider{msgs: msgs, model: defaultAnthropicModel, maxTokens: 100, maxRetries: 5}

	resp, err := p.Chat(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if msgs.calls != 3 {
		t.Errorf("calls = %d, want 3", msgs.calls)
	}
}

func TestAnthropicAuthNotRetried(t *testing.T) {
	authErr := &anthropicsdk.Error{StatusCode: http.StatusUnauthorized}
	msgs := &fakeAnthropicMessages{newErr: authErr}
	p := &anthropicProvider{msgs: msgs, model: defaultAnthropicModel, maxTokens: 100, maxRetries: 5}

	_, err := p.Chat(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	if msgs.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on auth)", msgs.calls)
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T", err)
	}
	if perr.Kind != KindAuth || perr.Retryable {
		t.Errorf("classified = %+v", perr)
	}
}

func TestConvertAnthropicMessagesRoles(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "extra system"},
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "working", ToolCalls: []ToolCall{{ID: "c1", Name: "exec"}}},
		{Role: "tool", ToolCalls: []ToolCall{{ID: "c1", Result: "done"}}},
	}
	system, params := convertAnthropicMessages(msgs, "base")
	if len(system) != 2 {
		t.Errorf("system blocks = %d, want 2", len(system))
	}
	if len(params) != 3 {
		t.Fatalf("message params = %d, want 3", len(params))
	}
	// Tool results go back as user-role messages.
	if params[2].Role != anthropicsdk.MessageParamRoleUser {
		t.Errorf("tool result role = %v", params[2].Role)
	}
}

func TestToolResultErrorFlagCarried(t *testing.T) {
	msg := Message{Role: "tool", ToolCalls: []ToolCall{
		{ID: "c1", Result: "Error: file not found", IsError: true},
		{ID: "c2", Result: "done", IsError: false},
	}}
	blocks := buildAnthropicToolResults(msg)
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	if got := blocks[0].OfToolResult.IsError.Value; !got {
		t.Error("failed result not marked is_error")
	}
	if got := blocks[1].OfToolResult.IsError.Value; got {
		t.Error("successful result marked is_error")
	}
}

type fakeOpenAICompletions struct {
	completion *openai.ChatCompletion
	err        error
	calls      int
	lastReq    openai.ChatCompletionNewParams
}

func (f *fakeOpenAICompletions) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...openaioption.RequestOption) (*openai.ChatCompletion, error) {
	f.calls++
	f.lastReq = params
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func TestOpenAIChatText(t *testing.T) {
	comps := &fakeOpenAICompletions{completion: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "hi back"},
			FinishReason: "stop",
		}},
	}}
	p := &openaiProvider{completions: comps, model: defaultOpenAIModel, maxTokens: 100, maxRetries: 1}

	resp, err := p.Chat(context.Background(), Request{
		System:   "you are helpful",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Message.Content != "hi back" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.StopReason != "stop" {
		t.Errorf("stopReason = %q", resp.StopReason)
	}
}

func TestOpenAIChatToolCalls(t *testing.T) {
	comps := &fakeOpenAICompletions{completion: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ChatCompletionMessageToolCall{{
					ID: "call_a",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      "exec",
						Arguments: `{"command":"ls"}`,
					},
				}},
			},
			FinishReason: "tool_calls",
		}},
	}}
	p := &openaiProvider{completions: comps, model: defaultOpenAIModel, maxTokens: 100, maxRetries: 1}

	resp, err := p.Chat(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "list files"}},
		Tools:    []ToolDefinition{{Name: "exec", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if !resp.HasToolCalls() {
		t.Fatal("expected tool calls")
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Name != "exec" || tc.Arguments["command"] != "ls" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestOpenAIAuthNotRetried(t *testing.T) {
	comps := &fakeOpenAICompletions{err: &openai.Error{StatusCode: http.StatusUnauthorized}}
	p := &openaiProvider{completions: comps, model: defaultOpenAIModel, maxTokens: 100, maxRetries: 5}

	_, err := p.Chat(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	if comps.calls != 1 {
		t.Errorf("calls = %d, want 1", comps.calls)
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T", err)
	}
	if perr.Kind != KindAuth {
		t.Errorf("kind = %q, want %q", perr.Kind, KindAuth)
	}
}

func TestErrorString(t *testing.T) {
	e := &Error{Kind: KindRateLimit, Status: 429, Retryable: true, Err: errors.New("slow down")}
	if !strings.Contains(e.Error(), "rate_limit") || !strings.Contains(e.Error(), "429") {
		t.Errorf("Error() = %q", e.Error())
	}
}
