package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeMemory struct {
	context string
}

func (f *fakeMemory) ContextFor(string) string { return f.context }

func TestBuildSystemPromptIdentity(t *testing.T) {
	workspace := t.TempDir()
	builder := NewContextBuilder(workspace, nil)
	builder.now = func() time.Time { return time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC) }

	prompt := builder.BuildSystemPrompt("")
	if !strings.Contains(prompt, "# sparkclaw") {
		t.Error("identity header missing")
	}
	if !strings.Contains(prompt, "2026-08-29 10:30 (Saturday)") {
		t.Error("current time missing")
	}
	if !strings.Contains(prompt, workspace) {
		t.Error("workspace path missing")
	}
}

func TestBuildSystemPromptBootstrapFiles(t *testing.T) {
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, "SOUL.md"), []byte("Be kind."), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "USER.md"), []byte("Name: Sam"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	prompt := NewContextBuilder(workspace, nil).BuildSystemPrompt("")
	if !strings.Contains(prompt, "## SOUL.md\n\nBe kind.") {
		t.Error("SOUL.md not injected")
	}
	if !strings.Contains(prompt, "## USER.md\n\nName: Sam") {
		t.Error("USER.md not injected")
	}
	if strings.Contains(prompt, "## AGENTS.md") {
		t.Error("absent bootstrap file appeared")
	}
}

func TestBuildSystemPromptMemoryFile(t *testing.T) {
	workspace := t.TempDir()
	memDir := filepath.Join(workspace, "memory")
	if err := os.MkdirAll(memDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(memDir, "MEMORY.md"), []byte("Long-term notes."), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	prompt := NewContextBuilder(workspace, nil).BuildSystemPrompt("")
	if !strings.Contains(prompt, "# Memory\n\nLong-term notes.") {
		t.Error("MEMORY.md not injected")
	}
}

func TestBuildSystemPromptDynamicMemory(t *testing.T) {
	builder := NewContextBuilder(t.TempDir(), &fakeMemory{context: "- likes coffee (tags: preference)"})

	prompt := builder.BuildSystemPrompt("what do I like?")
	if !strings.Contains(prompt, "# Dynamic Memory\n\n- likes coffee (tags: preference)") {
		t.Error("dynamic memory not injected")
	}

	// No current message means no retrieval.
	prompt = builder.BuildSystemPrompt("")
	if strings.Contains(prompt, "# Dynamic Memory") {
		t.Error("dynamic memory injected for empty message")
	}
}

func TestBuildSystemPromptEmptyDynamicMemoryOmitted(t *testing.T) {
	builder := NewContextBuilder(t.TempDir(), &fakeMemory{})
	if strings.Contains(builder.BuildSystemPrompt("hello"), "# Dynamic Memory") {
		t.Error("empty dynamic memory section appeared")
	}
}

func TestBuildSystemPromptSectionSeparator(t *testing.T) {
	workspace := t.TempDir()
	os.WriteFile(filepath.Join(workspace, "AGENTS.md"), []byte("agents"), 0o644)

	prompt := NewContextBuilder(workspace, nil).BuildSystemPrompt("")
	if !strings.Contains(prompt, "\n\n---\n\n") {
		t.Error("sections not separated")
	}
}

func TestBuildMessages(t *testing.T) {
	builder := NewContextBuilder(t.TempDir(), nil)
	history := builder.BuildMessages(nil, "first question")
	if len(history) != 1 || history[0].Role != "user" || history[0].Content != "first question" {
		t.Errorf("messages = %+v", history)
	}
}
