package memory

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Evolved skills below this success rate after enough usage get
// rolled back.
const (
	rollbackMinUsage    = 5
	rollbackSuccessRate = 0.3
)

var errInvalidSkillFrontmatter = errors.New("invalid skill frontmatter")

type skillFrontmatter struct {
	Description  string `yaml:"description"`
	IsPrimitive  bool   `yaml:"is_primitive"`
	Version      int    `yaml:"version"`
	UsageCount   int    `yaml:"usage_count"`
	SuccessCount int    `yaml:"success_count"`
	CreatedAt    string `yaml:"created_at"`
}

// SkillBank manages the inventory of memory skills, each stored as a
// markdown file with YAML frontmatter under its directory. The four
// primitive skills are seeded on first init and can never be removed.
type SkillBank struct {
	dir string

	mu     sync.RWMutex
	skills map[string]*Skill
}

// NewSkillBank opens (or initializes) a skill bank at dir.
func NewSkillBank(dir string) (*SkillBank, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create skills dir: %w", err)
	}
	b := &SkillBank{dir: dir}
	if err := b.ensurePrimitives(); err != nil {
		return nil, err
	}
	b.loadSkills()
	return b, nil
}

func (b *SkillBank) ensurePrimitives() error {
	for id, def := range primitiveSkills {
		path := filepath.Join(b.dir, id+".md")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		skill := &Skill{
			ID:          id,
			Description: def.description,
			Content:     def.content,
			IsPrimitive: true,
			Version:     1,
			CreatedAt:   time.Now(),
		}
		if err := b.writeSkillFile(skill); err != nil {
			return fmt.Errorf("seed primitive %s: %w", id, err)
		}
	}
	return nil
}

func (b *SkillBank) loadSkills() {
	b.skills = make(map[string]*Skill)

	names, err := filepath.Glob(filepath.Join(b.dir, "*.md"))
	if err != nil {
		return
	}
	sort.Strings(names)
	for _, path := range names {
		skill, err := parseSkillFile(path)
		if err != nil {
			log.Printf("[memory] warning: skip invalid skill %s: %v", filepath.Base(path), err)
			continue
		}
		b.skills[skill.ID] = skill
	}
}

func parseSkillFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	meta, body, err := parseSkillFrontmatter(data)
	if err != nil {
		return nil, err
	}

	createdAt := time.Now()
	if meta.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, meta.CreatedAt); err == nil {
			createdAt = t
		}
	}
	version := meta.Version
	if version == 0 {
		version = 1
	}

	id := strings.TrimSuffix(filepath.Base(path), ".md")
	return &Skill{
		ID:           id,
		Description:  meta.Description,
		Content:      body,
		IsPrimitive:  meta.IsPrimitive,
		Version:      version,
		UsageCount:   meta.UsageCount,
		SuccessCount: meta.SuccessCount,
		CreatedAt:    createdAt,
	}, nil
}

func parseSkillFrontmatter(content []byte) (skillFrontmatter, string, error) {
	text := strings.TrimPrefix(string(content), "\uFEFF")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return skillFrontmatter{}, "", errors.New("missing YAML frontmatter")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return skillFrontmatter{}, "", errors.New("missing closing frontmatter separator")
	}

	frontmatter := strings.Join(lines[1:end], "\n")
	body := strings.TrimSpace(strings.Join(lines[end+1:], "\n"))

	var meta skillFrontmatter
	if err := yaml.Unmarshal([]byte(frontmatter), &meta); err != nil {
		return skillFrontmatter{}, "", fmt.Errorf("%w: %v", errInvalidSkillFrontmatter, err)
	}
	return meta, body, nil
}

func (b *SkillBank) writeSkillFile(skill *Skill) error {
	version := skill.Version
	if version == 0 {
		version = 1
	}
	var buf strings.Builder
	buf.WriteString("---\n")
	fmt.Fprintf(&buf, "description: %q\n", skill.Description)
	fmt.Fprintf(&buf, "is_primitive: %t\n", skill.IsPrimitive)
	fmt.Fprintf(&buf, "version: %d\n", version)
	fmt.Fprintf(&buf, "usage_count: %d\n", skill.UsageCount)
	fmt.Fprintf(&buf, "success_count: %d\n", skill.SuccessCount)
	fmt.Fprintf(&buf, "created_at: %q\n", skill.CreatedAt.Format(time.RFC3339))
	buf.WriteString("---\n\n")
	buf.WriteString(skill.Content)

	path := filepath.Join(b.dir, skill.ID+".md")
	return os.WriteFile(path, []byte(buf.String()), 0o644)
}

// Get returns a skill by ID, or nil.
func (b *SkillBank) Get(skillID string) *Skill {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.skills[skillID]
}

// GetAll returns all skills in ID order.
func (b *SkillBank) GetAll() []*Skill {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Skill, 0, len(b.skills))
	for _, skill := range b.skills {
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Descriptions formats every skill as a selector prompt line.
func (b *SkillBank) Descriptions() string {
	skills := b.GetAll()
	lines := make([]string, 0, len(skills))
	for _, skill := range skills {
		tag := "[evolved]"
		if skill.IsPrimitive {
			tag = "[primitive]"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s %s", skill.ID, skill.Description, tag))
	}
	return strings.Join(lines, "\n")
}

// AddSkill writes a skill to disk and registers it.
func (b *SkillBank) AddSkill(skill *Skill) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if skill.Version == 0 {
		skill.Version = 1
	}
	if err := b.writeSkillFile(skill); err != nil {
		return fmt.Errorf("write skill %s: %w", skill.ID, err)
	}
	b.skills[skill.ID] = skill
	return nil
}

// RemoveSkill deletes an evolved skill. Primitives are never removed.
func (b *SkillBank) RemoveSkill(skillID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(skillID)
}

func (b *SkillBank) removeLocked(skillID string) bool {
	skill, ok := b.skills[skillID]
	if !ok || skill.IsPrimitive {
		return false
	}
	path := filepath.Join(b.dir, skillID+".md")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[memory] warning: remove skill file %s: %v", skillID, err)
	}
	delete(b.skills, skillID)
	return true
}

// RecordUsage bumps usage (and optionally success) counters and
// rewrites the skill file.
func (b *SkillBank) RecordUsage(skillID string, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	skill, ok := b.skills[skillID]
	if !ok {
		return
	}
	skill.UsageCount++
	if success {
		skill.SuccessCount++
	}
	if err := b.writeSkillFile(skill); err != nil {
		log.Printf("[memory] warning: persist skill %s: %v", skillID, err)
	}
}

// RollbackSkill removes an evolved skill whose success rate has
// fallen below threshold after sufficient usage. Reports whether the
// skill was removed.
func (b *SkillBank) RollbackSkill(skillID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	skill, ok := b.skills[skillID]
	if !ok || skill.IsPrimitive {
		return false
	}
	if skill.UsageCount >= rollbackMinUsage && skill.SuccessRate() < rollbackSuccessRate {
		return b.removeLocked(skillID)
	}
	return false
}
