// Package stream turns the output of an external AI tool into UI events.
//
// Output is read line by line. A stdout line that decodes as a JSON object is
// an envelope and is routed by its shape; anything else is passed through as
// text. Stderr lines are always passed through.
package stream

import "time"

// Channel tags where a line came from or how the UI should render it.
type Channel string

const (
	ChannelStdout Channel = "stdout"
	ChannelStderr Channel = "stderr"
	ChannelSystem Channel = "system"
)

// Event is one renderable line of terminal output.
type Event struct {
	Message string  `json:"message"`
	Stream  Channel `json:"stream"`
}

// Notification names.
const (
	NotifyOutput    = "terminal-output"
	NotifyComplete  = "bridge-complete"
	NotifyLifecycle = "bridge-lifecycle"
)

// Lifecycle values carried by NotifyLifecycle.
const (
	LifecycleStarted    = "started"
	LifecycleTerminated = "terminated"
)

// Notification is a named message delivered to the UI.
type Notification struct {
	Index     int64     `json:"index"` // assigned by the dispatcher
	Name      string    `json:"name"`
	SessionID string    `json:"session_id,omitempty"`
	Time      time.Time `json:"time"`
	Output    *Event    `json:"output,omitempty"`
	Content   string    `json:"content,omitempty"`
	Lifecycle string    `json:"lifecycle,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
}

// Sink receives notifications. Publish errors are reported to the caller,
// who logs them; they never stop a session.
type Sink interface {
	Publish(n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(n Notification) error

func (f SinkFunc) Publish(n Notification) error { return f(n) }

// Output builds a terminal-output notification.
func Output(sessionID string, ev Event) Notification {
	return Notification{Name: NotifyOutput, SessionID: sessionID, Time: time.Now().UTC(), Output: &ev}
}

// Complete builds a completion notification carrying the full answer.
func Complete(sessionID, content string) Notification {
	return Notification{Name: NotifyComplete, SessionID: sessionID, Time: time.Now().UTC(), Content: content}
}

// Lifecycle builds a lifecycle notification. exitCode may be nil.
func Lifecycle(sessionID, lifecycle string, exitCode *int) Notification {
	return Notification{
		Name:      NotifyLifecycle,
		SessionID: sessionID,
		Time:      time.Now().UTC(),
		Lifecycle: lifecycle,
		ExitCode:  exitCode,
	}
}
