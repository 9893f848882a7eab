// Package memory implements the self-evolving memory subsystem: a
// persistent entry store, a skill bank of memory-management skills,
// and the selector/executor/designer pipeline that maintains them.
package memory

import (
	"strings"
	"time"
)

// OperationType identifies a memory mutation kind.
type OperationType string

const (
	OpInsert OperationType = "insert"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
	OpNoop   OperationType = "noop"
)

// ParseOperationType maps a model-emitted type string (any case) to an
// OperationType. ok is false for unrecognized values.
func ParseOperationType(s string) (OperationType, bool) {
	switch OperationType(strings.ToLower(s)) {
	case OpInsert:
		return OpInsert, true
	case OpUpdate:
		return OpUpdate, true
	case OpDelete:
		return OpDelete, true
	case OpNoop:
		return OpNoop, true
	}
	return "", false
}

// Entry is a single stored memory.
type Entry struct {
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	Tags          []string  `json:"tags"`
	SourceSession string    `json:"source_session"`
	SourceSkill   string    `json:"source_skill"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	AccessCount   int       `json:"access_count"`
}

// Skill is a memory-management skill stored as a markdown file with
// frontmatter metadata. Primitive skills ship with the system and can
// never be removed; evolved skills are created by the designer.
type Skill struct {
	ID           string
	Description  string
	Content      string
	IsPrimitive  bool
	Version      int
	UsageCount   int
	SuccessCount int
	CreatedAt    time.Time
}

// SuccessRate returns success_count/usage_count, or 0 when unused.
func (s *Skill) SuccessRate() float64 {
	if s.UsageCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.UsageCount)
}

// Operation is a single memory mutation produced by the executor.
type Operation struct {
	Type      OperationType `json:"type"`
	Content   string        `json:"content"`
	TargetID  string        `json:"target_id"`
	Tags      []string      `json:"tags"`
	SkillID   string        `json:"skill_id"`
	Reasoning string        `json:"reasoning"`
}

// HardCase records a conversation turn where the memory pipeline
// performed poorly. Accumulated hard cases feed the designer.
type HardCase struct {
	ID                  string      `json:"id"`
	ConversationSnippet string      `json:"conversation_snippet"`
	SelectedSkills      []string    `json:"selected_skills"`
	Operations          []Operation `json:"operations"`
	FailureType         string      `json:"failure_type"`
	CreatedAt           time.Time   `json:"created_at"`
}
