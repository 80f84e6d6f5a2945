// Package history records finished one-shot bridge sessions on disk.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/clareza/clareza/internal/stream"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("not found in history")

// Store manages session history persistence.
type Store struct {
	dir string

	mu      sync.RWMutex
	entries map[string]*Entry // keyed by session ID
}

// Entry represents a finished session.
type Entry struct {
	SessionID       string      `json:"session_id"`
	State           string      `json:"state"`
	Prompt          string      `json:"prompt"`
	PromptPreview   string      `json:"prompt_preview"`
	Model           string      `json:"model"`
	StartedAt       time.Time   `json:"started_at"`
	CompletedAt     time.Time   `json:"completed_at"`
	DurationSeconds float64     `json:"duration_seconds"`
	ExitCode        *int        `json:"exit_code,omitempty"`
	Output          string      `json:"output,omitempty"`
	OutputPreview   string      `json:"output_preview,omitempty"`
	Error           *EntryError `json:"error,omitempty"`
	HasTranscript   bool        `json:"has_transcript"`
}

// EntryError captures error details.
type EntryError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ListOptions controls pagination for List.
type ListOptions struct {
	Page  int // 1-indexed
	Limit int // max 100
}

// ListResult contains paginated history entries.
type ListResult struct {
	Entries    []EntrySummary `json:"entries"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// EntrySummary is a lightweight version of Entry for list responses.
type EntrySummary struct {
	SessionID       string      `json:"session_id"`
	State           string      `json:"state"`
	PromptPreview   string      `json:"prompt_preview"`
	Model           string      `json:"model"`
	StartedAt       time.Time   `json:"started_at"`
	CompletedAt     time.Time   `json:"completed_at"`
	DurationSeconds float64     `json:"duration_seconds"`
	ExitCode        *int        `json:"exit_code,omitempty"`
	Error           *EntryError `json:"error,omitempty"`
	HasTranscript   bool        `json:"has_transcript"`
}

// Retention limits
const (
	MaxEntries     = 100
	MaxTranscripts = 20
	PreviewLength  = 200
)

// NewStore creates a new history store at the given directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	s := &Store{
		dir:     dir,
		entries: make(map[string]*Entry),
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return s, nil
}

// Save persists an entry and prunes old ones.
func (s *Store) Save(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.PromptPreview = truncate(entry.Prompt, PreviewLength)
	entry.OutputPreview = truncate(entry.Output, PreviewLength)
	if entry.DurationSeconds == 0 && !entry.StartedAt.IsZero() && !entry.CompletedAt.IsZero() {
		entry.DurationSeconds = entry.CompletedAt.Sub(entry.StartedAt).Seconds()
	}

	if err := writeJSON(s.entryPath(entry.SessionID), entry); err != nil {
		return fmt.Errorf("saving entry: %w", err)
	}
	s.entries[entry.SessionID] = entry
	s.pruneUnlocked()
	return nil
}

// SaveTranscript stores every event a session emitted, one JSON object per line.
func (s *Store) SaveTranscript(sessionID string, events []stream.Event) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encoding transcript: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.transcriptPath(sessionID), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}
	if entry, ok := s.entries[sessionID]; ok && !entry.HasTranscript {
		entry.HasTranscript = true
		if err := writeJSON(s.entryPath(sessionID), entry); err != nil {
			return fmt.Errorf("updating entry: %w", err)
		}
	}
	return nil
}

// Get retrieves an entry by session ID.
func (s *Store) Get(sessionID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s %w", sessionID, ErrNotFound)
	}
	return entry, nil
}

// GetTranscript returns the stored events of a known session.
func (s *Store) GetTranscript(sessionID string) ([]stream.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entries[sessionID]; !ok {
		return nil, fmt.Errorf("session %s %w", sessionID, ErrNotFound)
	}
	data, err := os.ReadFile(s.transcriptPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("transcript for %s %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("reading transcript: %w", err)
	}

	var events []stream.Event
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var ev stream.Event
		if err := dec.Decode(&ev); err != nil {
			return nil, fmt.Errorf("decoding transcript: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// List returns paginated history entries, newest first.
func (s *Store) List(opts ListOptions) ListResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}

	sorted := s.sortedUnlocked()
	total := len(sorted)
	totalPages := (total + opts.Limit - 1) / opts.Limit

	start := min((opts.Page-1)*opts.Limit, total)
	end := min(start+opts.Limit, total)

	entries := make([]EntrySummary, 0, end-start)
	for _, e := range sorted[start:end] {
		entries = append(entries, EntrySummary{
			SessionID:       e.SessionID,
			State:           e.State,
			PromptPreview:   e.PromptPreview,
			Model:           e.Model,
			StartedAt:       e.StartedAt,
			CompletedAt:     e.CompletedAt,
			DurationSeconds: e.DurationSeconds,
			ExitCode:        e.ExitCode,
			Error:           e.Error,
			HasTranscript:   e.HasTranscript,
		})
	}

	return ListResult{
		Entries:    entries,
		Page:       opts.Page,
		Limit:      opts.Limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

func (s *Store) load() error {
	files, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return err
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil || entry.SessionID == "" {
			continue
		}
		_, err = os.Stat(s.transcriptPath(entry.SessionID))
		entry.HasTranscript = err == nil
		s.entries[entry.SessionID] = &entry
	}
	return nil
}

func (s *Store) sortedUnlocked() []*Entry {
	sorted := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CompletedAt.After(sorted[j].CompletedAt)
	})
	return sorted
}

// pruneUnlocked removes entries and transcripts beyond the retention limits.
// Must be called with lock held.
func (s *Store) pruneUnlocked() {
	sorted := s.sortedUnlocked()

	if len(sorted) > MaxEntries {
		for _, e := range sorted[MaxEntries:] {
			os.Remove(s.entryPath(e.SessionID))
			os.Remove(s.transcriptPath(e.SessionID))
			delete(s.entries, e.SessionID)
		}
		sorted = sorted[:MaxEntries]
	}

	for i := MaxTranscripts; i < len(sorted); i++ {
		e := sorted[i]
		if !e.HasTranscript {
			continue
		}
		os.Remove(s.transcriptPath(e.SessionID))
		e.HasTranscript = false
		writeJSON(s.entryPath(e.SessionID), e)
	}
}

func (s *Store) entryPath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *Store) transcriptPath(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".transcript.jsonl")
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
