package stream

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/clareza/clareza/internal/logging"
)

func TestRoute_AssistantMessage(t *testing.T) {
	t.Parallel()

	r := Route(ChannelStdout, `{"type":"message","role":"assistant","content":"Hello"}`)
	if !r.Emit || !r.Answer {
		t.Fatalf("expected emitted answer, got %+v", r)
	}
	if r.Event != (Event{Message: "Hello", Stream: ChannelStdout}) {
		t.Errorf("unexpected event %+v", r.Event)
	}
}

func TestRoute_ErrorEnvelope(t *testing.T) {
	t.Parallel()

	r := Route(ChannelStdout, `{"error":"quota exceeded"}`)
	if !r.Emit || r.Answer {
		t.Fatalf("expected emitted non-answer, got %+v", r)
	}
	if r.Event != (Event{Message: "Error: quota exceeded", Stream: ChannelStderr}) {
		t.Errorf("unexpected event %+v", r.Event)
	}
}

func TestRoute_DecisionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		src    Channel
		line   string
		emit   bool
		answer bool
		want   Event
	}{
		{"user message ignored", ChannelStdout, `{"type":"message","role":"user","content":"hi"}`, false, false, Event{}},
		{"init envelope ignored", ChannelStdout, `{"type":"init","session_id":"x"}`, false, false, Event{}},
		{"non-string content ignored", ChannelStdout, `{"type":"message","role":"assistant","content":42}`, false, false, Event{}},
		{"missing content ignored", ChannelStdout, `{"type":"message","role":"assistant"}`, false, false, Event{}},
		{"empty assistant content", ChannelStdout, `{"type":"message","role":"assistant","content":""}`, true, true, Event{"", ChannelStdout}},
		{"assistant wins over error", ChannelStdout, `{"type":"message","role":"assistant","content":"ok","error":"x"}`, true, true, Event{"ok", ChannelStdout}},
		{"plain text", ChannelStdout, "Loaded cached credentials.", true, false, Event{"Loaded cached credentials.", ChannelStdout}},
		{"broken json is text", ChannelStdout, `{"type":"message"`, true, false, Event{`{"type":"message"`, ChannelStdout}},
		{"json scalar is text", ChannelStdout, `42`, true, false, Event{"42", ChannelStdout}},
		{"json null is text", ChannelStdout, `null`, true, false, Event{"null", ChannelStdout}},
		{"blank line", ChannelStdout, "", true, false, Event{"", ChannelStdout}},
		{"stderr text", ChannelStderr, "warning: slow", true, false, Event{"warning: slow", ChannelStderr}},
		{"stderr json not classified", ChannelStderr, `{"type":"message","role":"assistant","content":"x"}`, true, false,
			Event{`{"type":"message","role":"assistant","content":"x"}`, ChannelStderr}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := Route(tt.src, tt.line)
			if r.Emit != tt.emit || r.Answer != tt.answer {
				t.Fatalf("emit=%v answer=%v, want emit=%v answer=%v", r.Emit, r.Answer, tt.emit, tt.answer)
			}
			if r.Event != tt.want {
				t.Errorf("event %+v, want %+v", r.Event, tt.want)
			}
		})
	}
}

func TestAccumulator(t *testing.T) {
	t.Parallel()

	var acc Accumulator
	for _, line := range []string{
		`{"type":"message","role":"assistant","content":"Hel"}`,
		"noise",
		`{"error":"transient"}`,
		`{"type":"message","role":"assistant","content":"lo"}`,
	} {
		acc.Add(Route(ChannelStdout, line))
	}
	acc.Add(Route(ChannelStderr, "stderr text"))

	if got := acc.String(); got != "Hello" {
		t.Errorf("accumulated %q, want %q", got, "Hello")
	}
}

func TestLines(t *testing.T) {
	t.Parallel()

	in := "first\r\nsecond\n\nlast without newline"
	got := slices.Collect(Lines(strings.NewReader(in), nil))
	want := []string{"first", "second", "", "last without newline"}
	if !slices.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLines_SkipsInvalidUTF8(t *testing.T) {
	t.Parallel()

	in := "ok\n\xff\xfe broken\nstill ok\n"
	var skipped []int
	got := slices.Collect(Lines(strings.NewReader(in), func(n int, err error) {
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Errorf("unexpected skip error: %v", err)
		}
		skipped = append(skipped, n)
	}))

	if !slices.Equal(got, []string{"ok", "still ok"}) {
		t.Fatalf("got %q", got)
	}
	if !slices.Equal(skipped, []int{2}) {
		t.Errorf("skipped lines %v, want [2]", skipped)
	}
}

func TestLines_LongLine(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 3*1024*1024)
	got := slices.Collect(Lines(strings.NewReader(long+"\nnext\n"), nil))
	if len(got) != 2 || len(got[0]) != len(long) || got[1] != "next" {
		t.Fatalf("unexpected lines: count=%d", len(got))
	}
}

func TestLines_ReadErrorEndsSequence(t *testing.T) {
	t.Parallel()

	boom := errors.New("pipe broke")
	r := io.MultiReader(strings.NewReader("one\n"), iotest.ErrReader(boom))
	var skipErr error
	got := slices.Collect(Lines(r, func(_ int, err error) { skipErr = err }))

	if !slices.Equal(got, []string{"one"}) {
		t.Fatalf("got %q", got)
	}
	if !errors.Is(skipErr, boom) {
		t.Errorf("expected read error to be reported, got %v", skipErr)
	}
}

func TestLines_EarlyStop(t *testing.T) {
	t.Parallel()

	var got []string
	for line := range Lines(strings.NewReader("a\nb\nc\n"), nil) {
		got = append(got, line)
		if line == "b" {
			break
		}
	}
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("got %q", got)
	}
}

func TestEventLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logging.New(logging.Config{Output: &buf, Level: logging.LevelDebug})
	el := NewEventLogger(log.WithSession("s-1"))

	line := `{"type":"message","role":"assistant","content":"hi"}`
	el.Log(ChannelStdout, line, Route(ChannelStdout, line))
	el.Log(ChannelStdout, `{"type":"init"}`, Route(ChannelStdout, `{"type":"init"}`))
	el.Skip(ChannelStdout, 3, ErrInvalidEncoding)

	out := buf.String()
	for _, want := range []string{"assistant text", "structured line ignored", "output line skipped", `"session_id":"s-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}

	var nilLogger *EventLogger
	nilLogger.Log(ChannelStdout, "x", Result{})
}

func TestNotificationBuilders(t *testing.T) {
	t.Parallel()

	n := Output("s", Event{Message: "m", Stream: ChannelSystem})
	if n.Name != NotifyOutput || n.Output == nil || n.Output.Stream != ChannelSystem {
		t.Errorf("unexpected output notification %+v", n)
	}

	c := Complete("s", "answer")
	if c.Name != NotifyComplete || c.Content != "answer" {
		t.Errorf("unexpected completion notification %+v", c)
	}

	code := 0
	l := Lifecycle("s", LifecycleTerminated, &code)
	if l.Name != NotifyLifecycle || l.Lifecycle != LifecycleTerminated || *l.ExitCode != 0 {
		t.Errorf("unexpected lifecycle notification %+v", l)
	}

	var got []Notification
	sink := SinkFunc(func(n Notification) error { got = append(got, n); return nil })
	_ = sink.Publish(c)
	if len(got) != 1 {
		t.Errorf("sink func did not receive notification")
	}
}
