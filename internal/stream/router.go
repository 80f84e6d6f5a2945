package stream

import (
	"encoding/json"
	"strings"
)

// Envelope is the subset of a structured tool line the router looks at.
// Fields are nil when absent or not JSON strings.
type Envelope struct {
	Type    *string
	Role    *string
	Content *string
	Error   *string
}

// Classify strictly decodes line as a JSON object. Anything else, including
// valid JSON that is not an object, is opaque text.
func Classify(line string) (Envelope, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil || raw == nil {
		return Envelope{}, false
	}
	return Envelope{
		Type:    field(raw, "type"),
		Role:    field(raw, "role"),
		Content: field(raw, "content"),
		Error:   field(raw, "error"),
	}, true
}

func field(raw map[string]json.RawMessage, key string) *string {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil
	}
	return &s
}

// IsAssistantMessage reports whether the envelope carries answer text.
func (e Envelope) IsAssistantMessage() bool {
	return is(e.Type, "message") && is(e.Role, "assistant") && e.Content != nil
}

func is(p *string, want string) bool {
	return p != nil && *p == want
}

// Result is what one output line resolves to.
type Result struct {
	Event  Event
	Emit   bool // an event should be published
	Answer bool // Event.Message belongs in the session accumulator
}

// Route applies the line decision table for a line read from src.
func Route(src Channel, line string) Result {
	if src != ChannelStdout {
		return Result{Event: Event{Message: line, Stream: ChannelStderr}, Emit: true}
	}

	env, ok := Classify(line)
	if !ok {
		return Result{Event: Event{Message: line, Stream: ChannelStdout}, Emit: true}
	}

	switch {
	case env.IsAssistantMessage():
		return Result{Event: Event{Message: *env.Content, Stream: ChannelStdout}, Emit: true, Answer: true}
	case env.Error != nil:
		return Result{Event: Event{Message: "Error: " + *env.Error, Stream: ChannelStderr}, Emit: true}
	default:
		return Result{}
	}
}

// Accumulator concatenates answer text in arrival order. It is owned by the
// stdout reader and read only after that reader has been joined.
type Accumulator struct {
	b strings.Builder
}

// Add appends the result's message when it is answer text.
func (a *Accumulator) Add(r Result) {
	if r.Answer {
		a.b.WriteString(r.Event.Message)
	}
}

func (a *Accumulator) String() string {
	return a.b.String()
}
