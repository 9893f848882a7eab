// Package session persists conversation history, one JSONL file per
// session under the state directory.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultHistoryWindow bounds how many recent messages feed the model.
const DefaultHistoryWindow = 50

type StoredMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	Key       string
	Messages  []StoredMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddMessage appends a message and bumps the update time.
func (s *Session) AddMessage(role, content string) {
	now := time.Now()
	s.Messages = append(s.Messages, StoredMessage{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	s.UpdatedAt = now
}

// History returns up to max recent messages in order.
func (s *Session) History(max int) []StoredMessage {
	if max <= 0 {
		max = DefaultHistoryWindow
	}
	if len(s.Messages) <= max {
		out := make([]StoredMessage, len(s.Messages))
		copy(out, s.Messages)
		return out
	}
	out := make([]StoredMessage, max)
	copy(out, s.Messages[len(s.Messages)-max:])
	return out
}

// Clear drops all messages.
func (s *Session) Clear() {
	s.Messages = nil
	s.UpdatedAt = time.Now()
}

type metadataLine struct {
	Type      string    `json:"_type"`
	Key       string    `json:"key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var unsafeKeyChars = regexp.MustCompile(`[^\w\-]`)

// Manager loads and saves sessions, caching them in memory.
type Manager struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Session
}

func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Manager{
		dir:   dir,
		cache: make(map[string]*Session),
	}, nil
}

func (m *Manager) path(key string) string {
	return filepath.Join(m.dir, unsafeKeyChars.ReplaceAllString(key, "_")+".jsonl")
}

// GetOrCreate returns the cached or persisted session for key, creating
// an empty one if neither exists.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.cache[key]; ok {
		return s
	}

	s := m.load(key)
	if s == nil {
		now := time.Now()
		s = &Session{Key: key, CreatedAt: now, UpdatedAt: now}
	}
	m.cache[key] = s
	return s
}

func (m *Manager) load(key string) *Session {
	f, err := os.Open(m.path(key))
	if err != nil {
		return nil
	}
	defer f.Close()

	s := &Session{Key: key, CreatedAt: time.Now()}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var meta metadataLine
		if err := json.Unmarshal([]byte(line), &meta); err != nil {
			return nil
		}
		if meta.Type == "metadata" {
			if !meta.CreatedAt.IsZero() {
				s.CreatedAt = meta.CreatedAt
			}
			if !meta.UpdatedAt.IsZero() {
				s.UpdatedAt = meta.UpdatedAt
			}
			continue
		}

		var msg StoredMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil
		}
		s.Messages = append(s.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil
	}
	return s
}

// Save writes the session out as metadata line plus one message per line.
func (m *Manager) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	meta, err := json.Marshal(metadataLine{
		Type:      "metadata",
		Key:       s.Key,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	b.Write(meta)
	b.WriteByte('\n')

	for _, msg := range s.Messages {
		line, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal session message: %w", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(m.path(s.Key), []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	m.cache[s.Key] = s
	return nil
}

// Delete removes a session from cache and disk.
func (m *Manager) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, key)
	if err := os.Remove(m.path(key)); err != nil {
		return false
	}
	return true
}

// List returns the keys of all persisted sessions. The key is read from
// each file's metadata line; the filename is sanitized and not invertible.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		if key := m.readKey(filepath.Join(m.dir, name)); key != "" {
			keys = append(keys, key)
			continue
		}
		// Files written before keys were recorded in metadata.
		stem := strings.TrimSuffix(name, ".jsonl")
		keys = append(keys, strings.Replace(stem, "_", ":", 1))
	}
	return keys, nil
}

func (m *Manager) readKey(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var meta metadataLine
		if err := json.Unmarshal([]byte(line), &meta); err != nil {
			return ""
		}
		if meta.Type == "metadata" {
			return meta.Key
		}
		return ""
	}
	return ""
}
