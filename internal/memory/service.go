package memory

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/stellarlinkco/sparkclaw/internal/provider"
)

// Service ties the store, skill bank, and designer into the per-turn
// memory pipeline: retrieve, select skills, execute operations, apply,
// and evolve when enough hard cases have accumulated.
type Service struct {
	store    *Store
	bank     *SkillBank
	designer *Designer
	provider provider.Provider
	model    string

	topKSkills  int
	maxMemories int
	maxChars    int
	autoEvolve  bool
}

// ServiceOptions configures a memory service.
type ServiceOptions struct {
	Dir               string
	Provider          provider.Provider
	Model             string
	TopKSkills        int
	MaxMemories       int
	MaxChars          int
	HardCaseThreshold int
	AutoEvolve        bool
}

// NewService initializes the memory subsystem under opts.Dir, seeding
// primitive skills on first run.
func NewService(opts ServiceOptions) (*Service, error) {
	store, err := NewStore(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	bank, err := NewSkillBank(filepath.Join(opts.Dir, "skills"))
	if err != nil {
		return nil, fmt.Errorf("skill bank: %w", err)
	}
	designer, err := NewDesigner(bank, opts.Dir, opts.HardCaseThreshold)
	if err != nil {
		return nil, fmt.Errorf("skill designer: %w", err)
	}
	return &Service{
		store:       store,
		bank:        bank,
		designer:    designer,
		provider:    opts.Provider,
		model:       opts.Model,
		topKSkills:  opts.TopKSkills,
		maxMemories: opts.MaxMemories,
		maxChars:    opts.MaxChars,
		autoEvolve:  opts.AutoEvolve,
	}, nil
}

// Store exposes the underlying entry store.
func (s *Service) Store() *Store { return s.store }

// Bank exposes the underlying skill bank.
func (s *Service) Bank() *SkillBank { return s.bank }

// Designer exposes the underlying skill designer.
func (s *Service) Designer() *Designer { return s.designer }

// ContextFor returns ranked memories formatted for prompt injection,
// or "" when nothing is relevant.
func (s *Service) ContextFor(query string) string {
	return s.store.RetrieveForContext(query, s.maxMemories, s.maxChars)
}

// ProcessTurn runs the memory pipeline for a completed conversation
// turn. Errors are returned so the caller can log them, but a failed
// pipeline never affects the reply that was already produced.
func (s *Service) ProcessTurn(ctx context.Context, userMessage, assistantResponse, sessionKey string) error {
	turn := fmt.Sprintf("User: %s\nAssistant: %s", userMessage, assistantResponse)

	memoriesText := s.store.RetrieveForContext(userMessage, s.maxMemories, s.maxChars)
	relevant := s.store.Retrieve(userMessage, s.maxMemories)

	skillIDs, err := SelectSkills(ctx, s.provider, s.model, turn, memoriesText, s.bank.Descriptions(), s.topKSkills)
	if err != nil {
		return err
	}

	var selected []*Skill
	for _, id := range skillIDs {
		if skill := s.bank.Get(id); skill != nil {
			selected = append(selected, skill)
		}
	}
	if len(selected) == 0 {
		return nil
	}

	operations, err := ExecuteSkills(ctx, s.provider, s.model, turn, relevant, selected)
	if err != nil {
		return err
	}

	selectedIDs := make([]string, len(selected))
	for i, skill := range selected {
		selectedIDs[i] = skill.ID
	}

	if len(operations) == 0 && hasMutatingSkill(selected) {
		if err := s.designer.RecordHardCase(turn, selectedIDs, nil, "no_operations"); err != nil {
			log.Printf("[memory] warning: record hard case: %v", err)
		}
	}

	for _, op := range operations {
		if err := s.applyOperation(op, sessionKey); err != nil {
			log.Printf("[memory] warning: apply %s operation: %v", op.Type, err)
			if err := s.designer.RecordHardCase(turn, selectedIDs, operations, "target_missing"); err != nil {
				log.Printf("[memory] warning: record hard case: %v", err)
			}
			continue
		}
		for _, skill := range selected {
			s.bank.RecordUsage(skill.ID, true)
		}
	}

	if s.autoEvolve && s.designer.ShouldEvolve() {
		if _, err := s.designer.Evolve(ctx, s.provider, s.model); err != nil {
			log.Printf("[memory] warning: skill evolution: %v", err)
		}
		if rolled := s.designer.CheckRollbacks(); len(rolled) > 0 {
			log.Printf("[memory] rolled back low-performing skills: %v", rolled)
		}
	}
	return nil
}

// applyOperation applies one mutation to the store. UPDATE and DELETE
// without a resolved target report an error so the miss can be
// recorded as a hard case.
func (s *Service) applyOperation(op Operation, sessionKey string) error {
	switch op.Type {
	case OpInsert:
		if op.Content == "" {
			return nil
		}
		_, err := s.store.Insert(op.Content, op.Tags, sessionKey, op.SkillID)
		return err
	case OpUpdate:
		if op.TargetID == "" {
			return fmt.Errorf("update without target")
		}
		var content *string
		if op.Content != "" {
			content = &op.Content
		}
		entry, err := s.store.Update(op.TargetID, content, op.Tags)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("update target %s not found", op.TargetID)
		}
		return nil
	case OpDelete:
		if op.TargetID == "" {
			return fmt.Errorf("delete without target")
		}
		deleted, err := s.store.Delete(op.TargetID)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("delete target %s not found", op.TargetID)
		}
		return nil
	case OpNoop:
		return nil
	}
	return nil
}

func hasMutatingSkill(skills []*Skill) bool {
	for _, skill := range skills {
		if skill.ID != "primitive_noop" {
			return true
		}
	}
	return false
}
