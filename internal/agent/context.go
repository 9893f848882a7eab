// Package agent contains the core processing engine: the context
// builder that assembles system prompts and the loop that drives the
// model/tool iteration for each inbound message.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stellarlinkco/sparkclaw/internal/provider"
)

// Workspace files injected into the system prompt when present.
var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md"}

// MemoryRetriever supplies dynamic memory context for a message.
type MemoryRetriever interface {
	ContextFor(query string) string
}

// ContextBuilder assembles workspace files, memory, and conversation
// history into the prompt for a model call.
type ContextBuilder struct {
	workspace string
	memory    MemoryRetriever

	// now is swappable in tests.
	now func() time.Time
}

// NewContextBuilder creates a builder rooted at workspace. memory may
// be nil when the memory subsystem is disabled.
func NewContextBuilder(workspace string, memory MemoryRetriever) *ContextBuilder {
	return &ContextBuilder{workspace: workspace, memory: memory, now: time.Now}
}

// BuildSystemPrompt assembles the full system prompt for a turn.
// currentMessage drives dynamic memory retrieval and may be empty.
func (b *ContextBuilder) BuildSystemPrompt(currentMessage string) string {
	parts := []string{b.identity()}

	if bootstrap := b.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}
	if mem := b.loadMemoryFile(); mem != "" {
		parts = append(parts, "# Memory\n\n"+mem)
	}
	if b.memory != nil && currentMessage != "" {
		if dynamic := b.memory.ContextFor(currentMessage); dynamic != "" {
			parts = append(parts, "# Dynamic Memory\n\n"+dynamic)
		}
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (b *ContextBuilder) identity() string {
	now := b.now().Format("2006-01-02 15:04 (Monday)")
	workspace := b.workspace
	if abs, err := filepath.Abs(workspace); err == nil {
		workspace = abs
	}

	return fmt.Sprintf(`# sparkclaw

You are sparkclaw, a helpful AI assistant. You have access to tools that allow you to:
- Read, write, and edit files
- Execute shell commands
- Search the web and fetch web pages

## Current Time
%s

## Workspace
Your workspace is at: %s

## Guidelines
- Be helpful, accurate, and concise
- Explain what you're doing when using tools
- Ask for clarification when requests are ambiguous
- For normal conversation, just respond with text - don't use tools unless needed
`, now, workspace)
}

func (b *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(b.workspace, name))
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

func (b *ContextBuilder) loadMemoryFile() string {
	data, err := os.ReadFile(filepath.Join(b.workspace, "memory", "MEMORY.md"))
	if err != nil {
		return ""
	}
	return string(data)
}

// BuildMessages assembles the message list for a model call: prior
// history followed by the current user message.
func (b *ContextBuilder) BuildMessages(history []provider.Message, currentMessage string) []provider.Message {
	messages := make([]provider.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, provider.Message{Role: "user", Content: currentMessage})
	return messages
}
