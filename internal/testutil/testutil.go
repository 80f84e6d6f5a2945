// Package testutil holds helpers shared by package tests: fake tool scripts,
// a collecting notification sink and polling helpers.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clareza/clareza/internal/stream"
)

// AllocateTestPort returns a deterministic port based on test name
func AllocateTestPort(t *testing.T) int {
	t.Helper()
	return AllocateTestPortN(t, 0)
}

// AllocateTestPortN returns a deterministic port based on test name and index.
// Use different index values to get multiple unique ports within the same test.
func AllocateTestPortN(t *testing.T, n int) int {
	t.Helper()
	h := fnv.New32a()
	h.Write([]byte(t.Name()))
	h.Write([]byte{byte(n)})
	return 10000 + int(h.Sum32()%10000)
}

// WaitForHealthy waits for a URL to return 200 OK
func WaitForHealthy(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 500 * time.Millisecond}

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("Service at %s did not become healthy within %v", url, timeout)
}

// Eventually retries a condition until it returns true or timeout expires
func Eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Condition did not become true within timeout")
}

// WriteScript writes an executable shell script named name into dir and
// returns its path.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

// FakeTool writes a script called "gemini" that prints the given lines to
// stdout and exits with code. The script records its arguments in args.txt
// and its stdin in stdin.txt next to itself.
func FakeTool(t *testing.T, lines []string, code int) string {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	fmt.Fprintf(&b, "printf '%%s\\n' \"$@\" > %q\n", filepath.Join(dir, "args.txt"))
	fmt.Fprintf(&b, "cat > %q\n", filepath.Join(dir, "stdin.txt"))
	for _, l := range lines {
		fmt.Fprintf(&b, "printf '%%s\\n' %s\n", shellQuote(l))
	}
	fmt.Fprintf(&b, "exit %d\n", code)
	return WriteScript(t, dir, "gemini", b.String())
}

// ReadSibling reads a file written next to a fake tool script.
func ReadSibling(t *testing.T, script, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(filepath.Dir(script), name))
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return string(data)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// AssistantLine returns a structured answer line as the tool prints it.
func AssistantLine(content string) string {
	data, _ := json.Marshal(map[string]string{"type": "message", "role": "assistant", "content": content})
	return string(data)
}

// ErrorLine returns a structured error line.
func ErrorLine(message string) string {
	data, _ := json.Marshal(map[string]string{"error": message})
	return string(data)
}

// Sink collects notifications for assertions.
type Sink struct {
	mu    sync.Mutex
	items []stream.Notification
}

func (s *Sink) Publish(n stream.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
	return nil
}

// All returns a copy of everything published so far.
func (s *Sink) All() []stream.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stream.Notification(nil), s.items...)
}

// Outputs returns the terminal-output events in publish order.
func (s *Sink) Outputs() []stream.Event {
	var out []stream.Event
	for _, n := range s.All() {
		if n.Name == stream.NotifyOutput && n.Output != nil {
			out = append(out, *n.Output)
		}
	}
	return out
}

// Named returns the notifications with the given name.
func (s *Sink) Named(name string) []stream.Notification {
	var out []stream.Notification
	for _, n := range s.All() {
		if n.Name == name {
			out = append(out, n)
		}
	}
	return out
}
