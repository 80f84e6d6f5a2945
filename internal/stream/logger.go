package stream

import (
	"github.com/clareza/clareza/internal/logging"
)

// previewLen bounds how much of a line is copied into debug logs.
const previewLen = 120

// EventLogger records routed lines at debug level.
type EventLogger struct {
	log *logging.Logger
}

// NewEventLogger creates a logger for routed lines of one session.
func NewEventLogger(log *logging.Logger) *EventLogger {
	return &EventLogger{log: log}
}

// Log records a routed line, including structured lines that produced no event.
func (l *EventLogger) Log(src Channel, line string, r Result) {
	if l == nil || l.log == nil {
		return
	}
	fields := map[string]any{
		"source": string(src),
		"line":   truncate(line, previewLen),
	}
	switch {
	case r.Answer:
		l.log.Debug("assistant text", fields)
	case r.Emit:
		fields["stream"] = string(r.Event.Stream)
		l.log.Debug("output line", fields)
	default:
		l.log.Debug("structured line ignored", fields)
	}
}

// Skip records a line that could not be delivered.
func (l *EventLogger) Skip(src Channel, lineNo int, err error) {
	if l == nil || l.log == nil {
		return
	}
	l.log.Warn("output line skipped", map[string]any{
		"source": string(src),
		"line":   lineNo,
		"error":  err.Error(),
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
