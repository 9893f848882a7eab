package memory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestStoreInsertAndGet(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Insert("User prefers dark mode", []string{"preference"}, "cli:direct", "primitive_insert")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(entry.ID) != 12 {
		t.Errorf("entry ID length = %d, want 12", len(entry.ID))
	}
	if entry.CreatedAt.IsZero() || entry.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	got := store.Get(entry.ID)
	if got == nil || got.Content != "User prefers dark mode" {
		t.Fatalf("Get returned %+v", got)
	}
	if got.SourceSession != "cli:direct" || got.SourceSkill != "primitive_insert" {
		t.Errorf("source fields = %q, %q", got.SourceSession, got.SourceSkill)
	}
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	entry, err := store.Insert("lives in Berlin", []string{"location"}, "", "")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore reopen: %v", err)
	}
	got := reopened.Get(entry.ID)
	if got == nil {
		t.Fatal("entry not found after reopen")
	}
	if got.Content != "lives in Berlin" || len(got.Tags) != 1 || got.Tags[0] != "location" {
		t.Errorf("reloaded entry = %+v", got)
	}
}

func TestStoreUpdate(t *testing.T) {
	store := newTestStore(t)
	entry, _ := store.Insert("works at Acme", []string{"work"}, "", "")

	content := "works at Acme as senior engineer"
	updated, err := store.Update(entry.ID, &content, []string{"work", "role"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != content {
		t.Errorf("content = %q", updated.Content)
	}
	if len(updated.Tags) != 2 {
		t.Errorf("tags = %v", updated.Tags)
	}
}

func TestStoreUpdateMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	content := "anything"
	updated, err := store.Update("nonexistent12", &content, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated != nil {
		t.Errorf("expected nil for missing entry, got %+v", updated)
	}
}

func TestStoreUpdateNilFieldsUnchanged(t *testing.T) {
	store := newTestStore(t)
	entry, _ := store.Insert("original", []string{"a"}, "", "")

	updated, err := store.Update(entry.ID, nil, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != "original" || len(updated.Tags) != 1 {
		t.Errorf("fields changed: %+v", updated)
	}
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	entry, _ := store.Insert("temp", nil, "", "")

	deleted, err := store.Delete(entry.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	if store.Get(entry.ID) != nil {
		t.Error("entry still present after delete")
	}

	deleted, err = store.Delete(entry.ID)
	if err != nil || deleted {
		t.Errorf("second Delete = %v, %v, want false, nil", deleted, err)
	}
}

func TestStoreRetrieveScoring(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	// Tag overlap weighs 3x a content word overlap.
	tagged, _ := store.Insert("irrelevant text here", []string{"coffee"}, "", "")
	wordOnly, _ := store.Insert("likes coffee in the morning", nil, "", "")
	if _, err := store.Insert("completely unrelated entry", nil, "", ""); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results := store.Retrieve("coffee", 10)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != tagged.ID {
		t.Errorf("first result = %s, want tag-matched entry %s", results[0].ID, tagged.ID)
	}
	if results[1].ID != wordOnly.ID {
		t.Errorf("second result = %s, want %s", results[1].ID, wordOnly.ID)
	}
}

func TestStoreRetrieveRecencyBreaksScoreTies(t *testing.T) {
	store := newTestStore(t)
	base := time.Now()

	store.now = func() time.Time { return base.AddDate(0, 0, -20) }
	old, _ := store.Insert("enjoys hiking on weekends", nil, "", "")

	store.now = func() time.Time { return base }
	fresh, _ := store.Insert("enjoys hiking in the alps", nil, "", "")

	results := store.Retrieve("hiking", 10)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != fresh.ID || results[1].ID != old.ID {
		t.Errorf("order = [%s %s], want fresh %s first", results[0].ID, results[1].ID, fresh.ID)
	}
}

func TestStoreRetrieveIncrementsAccessCount(t *testing.T) {
	store := newTestStore(t)
	entry, _ := store.Insert("speaks French", []string{"language"}, "", "")

	store.Retrieve("french", 10)
	store.Retrieve("french", 10)

	if got := store.Get(entry.ID).AccessCount; got != 2 {
		t.Errorf("access count = %d, want 2", got)
	}
}

func TestStoreRetrieveNoMatch(t *testing.T) {
	store := newTestStore(t)
	store.Insert("cats are great", []string{"pets"}, "", "")

	if results := store.Retrieve("quantum physics", 10); len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if results := store.Retrieve("", 10); len(results) != 0 {
		t.Errorf("empty query returned %d results", len(results))
	}
}

func TestStoreRetrieveMaxResults(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		store.Insert("coffee note", []string{"coffee"}, "", "")
	}
	if results := store.Retrieve("coffee", 3); len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestRetrieveForContextFormat(t *testing.T) {
	store := newTestStore(t)
	store.Insert("likes espresso", []string{"coffee", "preference"}, "", "")

	got := store.RetrieveForContext("espresso", 10, 2000)
	want := "- likes espresso (tags: coffee, preference)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRetrieveForContextCharLimit(t *testing.T) {
	store := newTestStore(t)
	store.Insert("coffee "+strings.Repeat("x", 100), nil, "", "")
	store.Insert("coffee "+strings.Repeat("y", 100), nil, "", "")

	got := store.RetrieveForContext("coffee", 10, 120)
	if count := strings.Count(got, "\n"); count != 0 {
		t.Errorf("expected a single line under the char limit, got %d lines", count+1)
	}
}

func TestRetrieveForContextEmpty(t *testing.T) {
	store := newTestStore(t)
	if got := store.RetrieveForContext("anything", 10, 2000); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestStoreSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	entry, _ := store.Insert("valid entry", nil, "", "")

	path := filepath.Join(dir, "entries.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read entries: %v", err)
	}
	corrupted := append([]byte("not json\n{\"broken\n"), data...)
	if err := os.WriteFile(path, corrupted, 0o644); err != nil {
		t.Fatalf("write corrupted: %v", err)
	}

	reopened, _ := NewStore(dir)
	if reopened.Get(entry.ID) == nil {
		t.Error("valid entry lost")
	}
	if got := len(reopened.GetAll()); got != 1 {
		t.Errorf("entry count = %d, want 1", got)
	}
}
