package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/clareza/clareza/internal/stream"
)

var (
	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // bright blue

	stderrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // red

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // gray

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	missingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)
)

// terminal renders notifications as styled lines.
type terminal struct {
	mu  sync.Mutex
	out io.Writer
}

func (t *terminal) Publish(n stream.Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch n.Name {
	case stream.NotifyOutput:
		if n.Output == nil {
			return nil
		}
		fmt.Fprintln(t.out, render(*n.Output))
	case stream.NotifyLifecycle:
		line := "● " + n.Lifecycle
		if n.ExitCode != nil {
			line += fmt.Sprintf(" (exit %d)", *n.ExitCode)
		}
		fmt.Fprintln(t.out, dimStyle.Render(line))
	}
	return nil
}

func render(ev stream.Event) string {
	switch ev.Stream {
	case stream.ChannelSystem:
		return systemStyle.Render(ev.Message)
	case stream.ChannelStderr:
		return stderrStyle.Render(ev.Message)
	default:
		return ev.Message
	}
}
