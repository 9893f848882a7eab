package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/stellarlinkco/sparkclaw/internal/provider"
)

var defaultSkillFallback = []string{"primitive_insert", "primitive_noop"}

var (
	skillListRe = regexp.MustCompile(`(?m)(?:^\d+[.)]\s*|^-\s*)(\w+)`)
	skillWordRe = regexp.MustCompile(`\b(\w+_\w+)\b`)
)

// SelectSkills asks the model which memory skills apply to a
// conversation turn. Returns an ordered list of skill IDs, most
// relevant first, at most topK long. Parse failures fall back to the
// primitive insert/noop pair rather than erroring.
func SelectSkills(ctx context.Context, p provider.Provider, model, conversationTurn, existingMemories, skillDescriptions string, topK int) ([]string, error) {
	if existingMemories == "" {
		existingMemories = "(no memories yet)"
	}
	prompt := fmt.Sprintf(skillSelectionPrompt, existingMemories, skillDescriptions, conversationTurn, topK)

	temp := 0.0
	resp, err := p.Chat(ctx, provider.Request{
		Model:       model,
		System:      "You are a memory management controller.",
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		MaxTokens:   200,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("skill selection: %w", err)
	}
	return parseSkillIDs(resp.Message.Content, topK), nil
}

func parseSkillIDs(text string, topK int) []string {
	matches := skillListRe.FindAllStringSubmatch(strings.TrimSpace(text), -1)
	if len(matches) > 0 {
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m[1])
		}
		return capIDs(ids, topK)
	}

	words := skillWordRe.FindAllStringSubmatch(text, -1)
	if len(words) > 0 {
		ids := make([]string, 0, len(words))
		for _, m := range words {
			ids = append(ids, m[1])
		}
		return capIDs(ids, topK)
	}

	return capIDs(append([]string(nil), defaultSkillFallback...), topK)
}

func capIDs(ids []string, topK int) []string {
	if topK > 0 && len(ids) > topK {
		return ids[:topK]
	}
	return ids
}
