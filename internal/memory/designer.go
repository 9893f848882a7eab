package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/sparkclaw/internal/provider"
)

// Designer evolves the skill bank by analyzing accumulated hard cases
// (turns where the memory pipeline performed poorly) and asking the
// model to propose new or refined skills.
type Designer struct {
	bank      *SkillBank
	path      string
	threshold int

	mu    sync.Mutex
	cases []HardCase
}

// NewDesigner creates a designer persisting hard cases under dir.
// threshold is the number of hard cases that triggers evolution.
func NewDesigner(bank *SkillBank, dir string, threshold int) (*Designer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &Designer{
		bank:      bank,
		path:      filepath.Join(dir, "hard_cases.jsonl"),
		threshold: threshold,
	}, nil
}

func (d *Designer) ensureLoaded() []HardCase {
	if d.cases != nil {
		return d.cases
	}

	d.cases = []HardCase{}

	f, err := os.Open(d.path)
	if err != nil {
		return d.cases
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var hc HardCase
		if err := json.Unmarshal([]byte(line), &hc); err != nil || hc.ID == "" {
			continue
		}
		d.cases = append(d.cases, hc)
	}
	return d.cases
}

func (d *Designer) save() error {
	var buf strings.Builder
	for _, hc := range d.cases {
		data, err := json.Marshal(hc)
		if err != nil {
			return fmt.Errorf("marshal hard case %s: %w", hc.ID, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(d.path, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write hard cases: %w", err)
	}
	return nil
}

// RecordHardCase appends a hard case to the buffer.
func (d *Designer) RecordHardCase(snippet string, selectedSkills []string, operations []Operation, failureType string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ensureLoaded()
	d.cases = append(d.cases, HardCase{
		ID:                  newEntryID(),
		ConversationSnippet: snippet,
		SelectedSkills:      selectedSkills,
		Operations:          operations,
		FailureType:         failureType,
		CreatedAt:           time.Now(),
	})
	return d.save()
}

// ShouldEvolve reports whether enough hard cases have accumulated to
// trigger evolution.
func (d *Designer) ShouldEvolve() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ensureLoaded()) >= d.threshold
}

// HardCaseCount returns the current buffer size.
func (d *Designer) HardCaseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ensureLoaded())
}

// Evolve analyzes buffered hard cases and applies the model's skill
// proposals: add_new creates evolved skills, refine_existing rewrites
// non-primitive skills and bumps their version. The hard case buffer
// is cleared afterwards regardless of how many proposals applied.
// Returns the new or updated skills.
func (d *Designer) Evolve(ctx context.Context, p provider.Provider, model string) ([]*Skill, error) {
	d.mu.Lock()
	cases := append([]HardCase(nil), d.ensureLoaded()...)
	d.mu.Unlock()

	if len(cases) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(designerPrompt, d.bank.Descriptions(), formatHardCases(cases))

	temp := 0.3
	resp, err := p.Chat(ctx, provider.Request{
		Model:       model,
		System:      "You are a memory skill designer.",
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		MaxTokens:   2000,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("skill evolution: %w", err)
	}

	var changed []*Skill
	for _, proposal := range parseProposals(resp.Message.Content) {
		if proposal.ID == "" {
			continue
		}
		switch proposal.Action {
		case "add_new":
			if d.bank.Get(proposal.ID) != nil {
				// Existing ids only change through refine_existing.
				continue
			}
			skill := &Skill{
				ID:          proposal.ID,
				Description: proposal.Description,
				Content:     proposal.Content,
				Version:     1,
				CreatedAt:   time.Now(),
			}
			if err := d.bank.AddSkill(skill); err != nil {
				return changed, err
			}
			changed = append(changed, skill)
		case "refine_existing":
			existing := d.bank.Get(proposal.ID)
			if existing == nil || existing.IsPrimitive {
				continue
			}
			if proposal.Description != "" {
				existing.Description = proposal.Description
			}
			if proposal.Content != "" {
				existing.Content = proposal.Content
			}
			existing.Version++
			if err := d.bank.AddSkill(existing); err != nil {
				return changed, err
			}
			changed = append(changed, existing)
		}
	}

	d.mu.Lock()
	d.cases = []HardCase{}
	saveErr := d.save()
	d.mu.Unlock()
	if saveErr != nil {
		return changed, saveErr
	}
	return changed, nil
}

// CheckRollbacks removes evolved skills with poor success rates and
// returns the IDs that were rolled back.
func (d *Designer) CheckRollbacks() []string {
	var rolledBack []string
	for _, skill := range d.bank.GetAll() {
		if skill.IsPrimitive {
			continue
		}
		if d.bank.RollbackSkill(skill.ID) {
			rolledBack = append(rolledBack, skill.ID)
		}
	}
	return rolledBack
}

type skillProposal struct {
	Action      string
	ID          string
	Description string
	Content     string
}

func parseProposals(text string) []skillProposal {
	jsonStr := extractJSONArray(text)
	if jsonStr == "" || !gjson.Valid(jsonStr) {
		return nil
	}

	parsed := gjson.Parse(jsonStr)
	if !parsed.IsArray() {
		return nil
	}

	var proposals []skillProposal
	for _, raw := range parsed.Array() {
		if !raw.IsObject() {
			continue
		}
		proposals = append(proposals, skillProposal{
			Action:      raw.Get("action").String(),
			ID:          raw.Get("id").String(),
			Description: raw.Get("description").String(),
			Content:     raw.Get("content").String(),
		})
	}
	return proposals
}

func formatHardCases(cases []HardCase) string {
	parts := make([]string, 0, len(cases))
	for i, hc := range cases {
		ops := make([]string, 0, len(hc.Operations))
		for _, op := range hc.Operations {
			ops = append(ops, fmt.Sprintf("%s(%s)", op.Type, op.Reasoning))
		}
		opsText := strings.Join(ops, ", ")
		if opsText == "" {
			opsText = "none"
		}
		failure := hc.FailureType
		if failure == "" {
			failure = "unknown"
		}
		snippet := hc.ConversationSnippet
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		parts = append(parts, fmt.Sprintf(
			"### Case %d\n- Failure type: %s\n- Skills used: %s\n- Operations: %s\n- Conversation: %s",
			i+1, failure, strings.Join(hc.SelectedSkills, ", "), opsText, snippet))
	}
	return strings.Join(parts, "\n\n")
}
