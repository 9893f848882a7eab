package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/sparkclaw/internal/provider"
)

var (
	jsonFenceRe   = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")
	jsonBracketRe = regexp.MustCompile(`(?s)\[.*\]`)
)

// ExecuteSkills asks the model to translate selected skills into
// concrete memory operations for a conversation turn. Unparseable
// responses yield an empty operation list, never an error.
func ExecuteSkills(ctx context.Context, p provider.Provider, model, conversationTurn string, relevantMemories []*Entry, selectedSkills []*Skill) ([]Operation, error) {
	indexed := formatIndexedMemories(relevantMemories)
	if indexed == "" {
		indexed = "(no existing memories)"
	}
	prompt := fmt.Sprintf(executorPrompt, indexed, formatSkillInstructions(selectedSkills), conversationTurn)

	temp := 0.0
	resp, err := p.Chat(ctx, provider.Request{
		Model:       model,
		System:      "You are a memory executor.",
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		MaxTokens:   1000,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("memory execution: %w", err)
	}
	return parseOperations(resp.Message.Content, relevantMemories, selectedSkills), nil
}

func formatIndexedMemories(memories []*Entry) string {
	if len(memories) == 0 {
		return ""
	}
	lines := make([]string, 0, len(memories))
	for i, entry := range memories {
		tags := "none"
		if len(entry.Tags) > 0 {
			tags = strings.Join(entry.Tags, ", ")
		}
		id := entry.ID
		if len(id) > 8 {
			id = id[:8]
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s (tags: %s)", i, id, entry.Content, tags))
	}
	return strings.Join(lines, "\n")
}

func formatSkillInstructions(skills []*Skill) string {
	parts := make([]string, 0, len(skills))
	for _, skill := range skills {
		parts = append(parts, fmt.Sprintf("### Skill: %s\n%s", skill.ID, skill.Content))
	}
	return strings.Join(parts, "\n\n")
}

func parseOperations(text string, memories []*Entry, skills []*Skill) []Operation {
	jsonStr := extractJSONArray(text)
	if jsonStr == "" || !gjson.Valid(jsonStr) {
		return nil
	}

	parsed := gjson.Parse(jsonStr)
	if !parsed.IsArray() {
		return nil
	}

	skillID := ""
	if len(skills) > 0 {
		skillID = skills[0].ID
	}

	var operations []Operation
	for _, raw := range parsed.Array() {
		if !raw.IsObject() {
			continue
		}
		opType, ok := ParseOperationType(raw.Get("type").String())
		if !ok {
			continue
		}

		targetID := ""
		if opType == OpUpdate || opType == OpDelete {
			if idx := raw.Get("memory_index"); idx.Exists() && idx.Type == gjson.Number {
				i := int(idx.Int())
				if i >= 0 && i < len(memories) {
					targetID = memories[i].ID
				}
			}
		}

		var tags []string
		for _, t := range raw.Get("tags").Array() {
			tags = append(tags, t.String())
		}

		operations = append(operations, Operation{
			Type:      opType,
			Content:   raw.Get("content").String(),
			TargetID:  targetID,
			Tags:      tags,
			SkillID:   skillID,
			Reasoning: raw.Get("reasoning").String(),
		})
	}
	return operations
}

// extractJSONArray pulls a JSON array out of model output, preferring
// a fenced code block over a bare bracketed span.
func extractJSONArray(text string) string {
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := jsonBracketRe.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}
