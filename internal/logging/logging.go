// Package logging provides structured JSON logging with levels and a queryable
// in-memory history.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func levelPriority(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// ParseLevel maps a configuration string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Entry represents a single log entry
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Config holds logger configuration
type Config struct {
	Output     io.Writer // default: os.Stderr
	Level      Level     // default: info
	Component  string
	MaxEntries int // entries kept in memory (default: 1000)
}

// sink is shared by a logger and every scoped logger derived from it.
type sink struct {
	mu      sync.RWMutex
	output  io.Writer
	level   Level
	ring    []Entry
	next    int
	full    bool
	counts  map[Level]int64
	maxSize int
}

// Logger writes JSON lines and remembers the most recent entries for Query.
// Scoped loggers from Named and WithSession share storage with their parent.
type Logger struct {
	sink      *sink
	component string
	sessionID string
}

// New creates a new logger with the given configuration
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Level == "" {
		cfg.Level = LevelInfo
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	return &Logger{
		sink: &sink{
			output:  cfg.Output,
			level:   cfg.Level,
			ring:    make([]Entry, cfg.MaxEntries),
			counts:  make(map[Level]int64),
			maxSize: cfg.MaxEntries,
		},
		component: cfg.Component,
	}
}

// Discard returns a logger that stores entries but writes nothing.
func Discard() *Logger {
	return New(Config{Output: io.Discard, MaxEntries: 100})
}

// SetLevel changes the minimum log level
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// Named returns a logger that tags entries with a different component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{sink: l.sink, component: component, sessionID: l.sessionID}
}

// WithSession returns a logger that adds session_id to all entries.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{sink: l.sink, component: l.component, sessionID: sessionID}
}

func (l *Logger) Debug(msg string, fields ...map[string]any) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...map[string]any)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...map[string]any)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...map[string]any) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, fields []map[string]any) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	if levelPriority(level) < levelPriority(s.level) {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   msg,
		Component: l.component,
		SessionID: l.sessionID,
	}
	if len(fields) > 0 {
		entry.Fields = fields[0]
	}

	s.counts[level]++
	s.ring[s.next] = entry
	s.next = (s.next + 1) % s.maxSize
	if s.next == 0 {
		s.full = true
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(s.output, `{"level":"error","message":"failed to marshal log entry: %s"}`+"\n", err)
		return
	}
	s.output.Write(append(data, '\n'))
}

// ordered returns stored entries oldest first. Caller holds the read lock.
func (s *sink) ordered() []Entry {
	if !s.full {
		return s.ring[:s.next]
	}
	out := make([]Entry, 0, s.maxSize)
	out = append(out, s.ring[s.next:]...)
	return append(out, s.ring[:s.next]...)
}

// Query parameters for filtering logs
type Query struct {
	Level     Level // minimum level
	SessionID string
	Since     time.Time
	Until     time.Time
	Limit     int // 0 = all
	Component string
}

// QueryResult contains filtered log entries and metadata
type QueryResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"` // matches before limit
	Counts  Stats   `json:"counts"`
}

// Stats contains log statistics
type Stats struct {
	Debug int64 `json:"debug"`
	Info  int64 `json:"info"`
	Warn  int64 `json:"warn"`
	Error int64 `json:"error"`
	Total int64 `json:"total"`
}

// Query returns log entries matching the filter criteria, keeping the most
// recent ones when a limit applies.
func (l *Logger) Query(q Query) QueryResult {
	s := l.sink
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []Entry
	for _, e := range s.ordered() {
		if q.Level != "" && levelPriority(e.Level) < levelPriority(q.Level) {
			continue
		}
		if q.SessionID != "" && e.SessionID != q.SessionID {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.Timestamp.After(q.Until) {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		filtered = append(filtered, e)
	}

	total := len(filtered)
	if q.Limit > 0 && len(filtered) > q.Limit {
		filtered = filtered[len(filtered)-q.Limit:]
	}

	return QueryResult{
		Entries: filtered,
		Total:   total,
		Counts:  s.stats(),
	}
}

// Stats returns current log statistics without entries
func (l *Logger) Stats() Stats {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return l.sink.stats()
}

func (s *sink) stats() Stats {
	st := Stats{
		Debug: s.counts[LevelDebug],
		Info:  s.counts[LevelInfo],
		Warn:  s.counts[LevelWarn],
		Error: s.counts[LevelError],
	}
	st.Total = st.Debug + st.Info + st.Warn + st.Error
	return st
}

// Clear removes all stored entries and resets counts
func (l *Logger) Clear() {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = make([]Entry, s.maxSize)
	s.next = 0
	s.full = false
	s.counts = make(map[Level]int64)
}
