package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists memory entries to a JSONL file with an in-memory
// cache, lazily loaded on first access. One line per entry; corrupt
// lines are skipped on load.
type Store struct {
	dir  string
	path string

	mu    sync.Mutex
	cache map[string]*Entry

	// now is swappable in tests for deterministic recency scoring.
	now func() time.Time
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &Store{
		dir:  dir,
		path: filepath.Join(dir, "entries.jsonl"),
		now:  time.Now,
	}, nil
}

func (s *Store) ensureLoaded() map[string]*Entry {
	if s.cache != nil {
		return s.cache
	}
	s.cache = make(map[string]*Entry)

	f, err := os.Open(s.path)
	if err != nil {
		return s.cache
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil || entry.ID == "" {
			continue
		}
		s.cache[entry.ID] = &entry
	}
	return s.cache
}

func (s *Store) save() error {
	entries := s.ensureLoaded()

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf strings.Builder
	for _, id := range ids {
		data, err := json.Marshal(entries[id])
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", id, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(s.path, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write entries: %w", err)
	}
	return nil
}

func newEntryID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Insert creates and persists a new entry.
func (s *Store) Insert(content string, tags []string, sourceSession, sourceSkill string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.ensureLoaded()
	now := s.now()
	entry := &Entry{
		ID:            newEntryID(),
		Content:       content,
		Tags:          tags,
		SourceSession: sourceSession,
		SourceSkill:   sourceSkill,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}
	entries[entry.ID] = entry
	if err := s.save(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Update rewrites content and/or tags of an existing entry. Nil means
// leave the field unchanged. Returns nil when the entry is missing.
func (s *Store) Update(entryID string, content *string, tags []string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.ensureLoaded()
	entry, ok := entries[entryID]
	if !ok {
		return nil, nil
	}
	if content != nil {
		entry.Content = *content
	}
	if tags != nil {
		entry.Tags = tags
	}
	entry.UpdatedAt = s.now()
	if err := s.save(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes an entry, reporting whether it existed.
func (s *Store) Delete(entryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.ensureLoaded()
	if _, ok := entries[entryID]; !ok {
		return false, nil
	}
	delete(entries, entryID)
	if err := s.save(); err != nil {
		return true, err
	}
	return true, nil
}

// Get returns a single entry or nil.
func (s *Store) Get(entryID string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoaded()[entryID]
}

// GetAll returns all entries, ordered by ID for stable output.
func (s *Store) GetAll() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.ensureLoaded()
	out := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Retrieve ranks entries against the query and returns up to
// maxResults, best first. Score is (tag overlap * 3) + content word
// overlap + a recency bonus decaying from 2.0 over 30 days; entries
// qualify only with at least one keyword match. Returned entries get
// their access count bumped and persisted.
func (s *Store) Retrieve(query string, maxResults int) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.ensureLoaded()
	if len(entries) == 0 {
		return nil
	}

	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return nil
	}

	type scored struct {
		score float64
		entry *Entry
	}
	// Iterate in ID order so equal scores rank deterministically.
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := s.now()
	var ranked []scored

	for _, id := range ids {
		entry := entries[id]
		tagOverlap := 0
		for _, tag := range entry.Tags {
			if _, ok := queryTokens[strings.ToLower(tag)]; ok {
				tagOverlap++
			}
		}

		wordOverlap := 0
		for word := range tokenSet(entry.Content) {
			if _, ok := queryTokens[word]; ok {
				wordOverlap++
			}
		}

		ageDays := now.Sub(entry.UpdatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		recency := 2.0 * (1 - ageDays/30)
		if recency < 0 {
			recency = 0
		}

		// Recency only breaks ties between keyword matches; an entry
		// with no overlap at all never qualifies.
		if tagOverlap+wordOverlap > 0 {
			score := float64(tagOverlap*3+wordOverlap) + recency
			ranked = append(ranked, scored{score, entry})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}

	results := make([]*Entry, len(ranked))
	for i, r := range ranked {
		r.entry.AccessCount++
		results[i] = r.entry
	}
	if len(results) > 0 {
		if err := s.save(); err != nil {
			log.Printf("[memory] warning: persist access counts: %v", err)
		}
	}
	return results
}

// RetrieveForContext formats ranked memories as a markdown bullet
// list, stopping before maxChars would be exceeded.
func (s *Store) RetrieveForContext(query string, maxEntries, maxChars int) string {
	entries := s.Retrieve(query, maxEntries)
	if len(entries) == 0 {
		return ""
	}

	var lines []string
	chars := 0
	for _, entry := range entries {
		line := "- " + entry.Content
		if len(entry.Tags) > 0 {
			line += " (tags: " + strings.Join(entry.Tags, ", ") + ")"
		}
		if chars+len(line) > maxChars {
			break
		}
		lines = append(lines, line)
		chars += len(line)
	}
	return strings.Join(lines, "\n")
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = struct{}{}
	}
	return set
}
