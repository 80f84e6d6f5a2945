// Package sessionstate defines the lifecycle of a single bridge session and
// the transitions allowed between its states.
package sessionstate

import (
	"fmt"
	"sync"
	"time"
)

// State represents a session's current state in its lifecycle.
type State string

const (
	// Idle is a session that has been created but not started.
	Idle State = "idle"

	// Resolving means the tool executable is being located.
	Resolving State = "resolving"

	// Spawning means the process is being launched and fed its prompt.
	Spawning State = "spawning"

	// Streaming means output is being read while the process runs.
	Streaming State = "streaming"

	// Draining means the process has exited or was killed and the readers
	// are being joined.
	Draining State = "draining"

	// Completed is a zero exit with the accumulated answer available.
	Completed State = "completed"

	// Failed covers lookup, spawn and non-zero exit failures.
	Failed State = "failed"

	// TimedOut means the process was killed after the session deadline.
	TimedOut State = "timed_out"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if the state is a final state.
func (s State) IsTerminal() bool {
	switch s {
	case Completed, Failed, TimedOut:
		return true
	}
	return false
}

// IsActive returns true while a process may be alive for the session.
func (s State) IsActive() bool {
	switch s {
	case Spawning, Streaming, Draining:
		return true
	}
	return false
}

// ValidTransitions maps each state to the states it can move to.
var ValidTransitions = map[State][]State{
	Idle:      {Resolving},
	Resolving: {Spawning, Failed},
	Spawning:  {Streaming, Failed},
	Streaming: {Draining},
	Draining:  {Completed, Failed, TimedOut},
	Completed: {},
	Failed:    {},
	TimedOut:  {},
}

// CanTransition returns true if transitioning from 'from' to 'to' is valid.
func CanTransition(from, to State) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllStates returns all defined states in lifecycle order.
func AllStates() []State {
	return []State{Idle, Resolving, Spawning, Streaming, Draining, Completed, Failed, TimedOut}
}

// Parse converts a string to a State, returning the state and whether it was valid.
func Parse(s string) (State, bool) {
	for _, valid := range AllStates() {
		if State(s) == valid {
			return valid, true
		}
	}
	return "", false
}

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Machine tracks the state of one session. It is safe for concurrent use so
// status readers can observe a session while its runner advances it.
type Machine struct {
	mu      sync.RWMutex
	state   State
	history []Transition
}

// NewMachine returns a machine in the Idle state.
func NewMachine() *Machine {
	return &Machine{state: Idle}
}

// To moves the machine to next. Invalid transitions leave the state unchanged.
func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.state, next) {
		return fmt.Errorf("invalid session transition %s -> %s", m.state, next)
	}
	m.history = append(m.history, Transition{From: m.state, To: next, At: time.Now().UTC()})
	m.state = next
	return nil
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// History returns the transitions taken so far.
func (m *Machine) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transition(nil), m.history...)
}
