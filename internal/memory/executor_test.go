package memory

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testSkill(id string) *Skill {
	return &Skill{ID: id, Description: id, Content: "# " + id, CreatedAt: time.Now()}
}

func TestFormatIndexedMemories(t *testing.T) {
	memories := []*Entry{
		{ID: "abcdef123456", Content: "likes coffee", Tags: []string{"preference", "food"}},
		{ID: "fedcba654321", Content: "lives in Berlin"},
	}
	got := formatIndexedMemories(memories)
	want := "0. [abcdef12] likes coffee (tags: preference, food)\n1. [fedcba65] lives in Berlin (tags: none)"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatSkillInstructions(t *testing.T) {
	skills := []*Skill{testSkill("primitive_insert"), testSkill("primitive_noop")}
	got := formatSkillInstructions(skills)
	if !strings.Contains(got, "### Skill: primitive_insert\n# primitive_insert") {
		t.Errorf("missing skill block:\n%s", got)
	}
	if !strings.Contains(got, "\n\n### Skill: primitive_noop") {
		t.Errorf("blocks not separated:\n%s", got)
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"fenced json", "```json\n[{\"type\": \"NOOP\"}]\n```", `[{"type": "NOOP"}]`},
		{"fenced no lang", "```\n[1, 2]\n```", "[1, 2]"},
		{"fence with prose around", "Here you go:\n```json\n[]\n```\nDone.", "[]"},
		{"bare array", `The operations are [{"type": "INSERT"}] as requested`, `[{"type": "INSERT"}]`},
		{"no json", "I cannot help with that.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONArray(tt.text); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseOperations(t *testing.T) {
	memories := []*Entry{
		{ID: "aaaa11112222", Content: "old fact"},
		{ID: "bbbb33334444", Content: "other fact"},
	}
	skills := []*Skill{testSkill("primitive_update"), testSkill("primitive_insert")}

	text := "```json\n" + `[
  {"type": "INSERT", "content": "User prefers dark mode", "tags": ["preference"], "reasoning": "new fact"},
  {"type": "UPDATE", "memory_index": 1, "content": "updated fact", "tags": ["work"]},
  {"type": "DELETE", "memory_index": 0},
  {"type": "NOOP", "reasoning": "nothing else"}
]` + "\n```"

	ops := parseOperations(text, memories, skills)
	if len(ops) != 4 {
		t.Fatalf("got %d operations, want 4", len(ops))
	}

	if ops[0].Type != OpInsert || ops[0].Content != "User prefers dark mode" || len(ops[0].Tags) != 1 {
		t.Errorf("insert op = %+v", ops[0])
	}
	if ops[0].SkillID != "primitive_update" {
		t.Errorf("skill id = %q, want first selected skill", ops[0].SkillID)
	}
	if ops[1].Type != OpUpdate || ops[1].TargetID != "bbbb33334444" {
		t.Errorf("update op = %+v", ops[1])
	}
	if ops[2].Type != OpDelete || ops[2].TargetID != "aaaa11112222" {
		t.Errorf("delete op = %+v", ops[2])
	}
	if ops[3].Type != OpNoop || ops[3].Reasoning != "nothing else" {
		t.Errorf("noop op = %+v", ops[3])
	}
}

func TestParseOperationsSkipsInvalid(t *testing.T) {
	memories := []*Entry{{ID: "aaaa11112222"}}
	skills := []*Skill{testSkill("primitive_insert")}

	tests := []struct {
		name string
		text string
		want int
	}{
		{"unknown type skipped", `[{"type": "MERGE"}, {"type": "NOOP"}]`, 1},
		{"non object skipped", `["INSERT", {"type": "NOOP"}]`, 1},
		{"not an array", `{"type": "INSERT"}`, 0},
		{"broken json", "```json\n[{{{\n```", 0},
		{"empty response", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseOperations(tt.text, memories, skills); len(got) != tt.want {
				t.Errorf("got %d operations, want %d", len(got), tt.want)
			}
		})
	}
}

func TestParseOperationsOutOfRangeIndex(t *testing.T) {
	memories := []*Entry{{ID: "aaaa11112222"}}
	ops := parseOperations(`[{"type": "UPDATE", "memory_index": 5, "content": "x"}]`, memories, nil)
	if len(ops) != 1 {
		t.Fatalf("got %d operations", len(ops))
	}
	if ops[0].TargetID != "" {
		t.Errorf("target id = %q, want empty for out-of-range index", ops[0].TargetID)
	}
}

func TestParseOperationsCaseInsensitiveType(t *testing.T) {
	ops := parseOperations(`[{"type": "insert", "content": "x"}, {"type": "Noop"}]`, nil, nil)
	if len(ops) != 2 || ops[0].Type != OpInsert || ops[1].Type != OpNoop {
		t.Errorf("ops = %+v", ops)
	}
}

func TestExecuteSkillsRequestShape(t *testing.T) {
	fake := &fakeProvider{responses: []string{`[{"type": "NOOP", "reasoning": "greeting"}]`}}
	memories := []*Entry{{ID: "aaaa11112222", Content: "likes tea"}}
	skills := []*Skill{testSkill("primitive_noop")}

	ops, err := ExecuteSkills(context.Background(), fake, "test-model", "User: hi\nAssistant: hello", memories, skills)
	if err != nil {
		t.Fatalf("ExecuteSkills: %v", err)
	}
	if len(ops) != 1 || ops[0].Type != OpNoop {
		t.Errorf("ops = %+v", ops)
	}

	req := fake.requests[0]
	if req.System != "You are a memory executor." {
		t.Errorf("system = %q", req.System)
	}
	if req.MaxTokens != 1000 {
		t.Errorf("max tokens = %d", req.MaxTokens)
	}
	prompt := req.Messages[0].Content
	if !strings.Contains(prompt, "0. [aaaa1111] likes tea (tags: none)") {
		t.Error("indexed memories missing from prompt")
	}
	if !strings.Contains(prompt, "### Skill: primitive_noop") {
		t.Error("skill instructions missing from prompt")
	}
}

func TestExecuteSkillsNoMemoriesPlaceholder(t *testing.T) {
	fake := &fakeProvider{responses: []string{"[]"}}
	if _, err := ExecuteSkills(context.Background(), fake, "m", "turn", nil, []*Skill{testSkill("primitive_insert")}); err != nil {
		t.Fatalf("ExecuteSkills: %v", err)
	}
	if !strings.Contains(fake.requests[0].Messages[0].Content, "(no existing memories)") {
		t.Error("placeholder missing")
	}
}
