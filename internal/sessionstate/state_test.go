package sessionstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "streaming", Streaming.String())
	assert.Equal(t, "timed_out", TimedOut.String())
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{Idle, false},
		{Resolving, false},
		{Spawning, false},
		{Streaming, false},
		{Draining, false},
		{Completed, true},
		{Failed, true},
		{TimedOut, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
		})
	}
}

func TestIsActive(t *testing.T) {
	assert.False(t, Idle.IsActive())
	assert.False(t, Resolving.IsActive())
	assert.True(t, Spawning.IsActive())
	assert.True(t, Streaming.IsActive())
	assert.True(t, Draining.IsActive())
	assert.False(t, Completed.IsActive())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(Idle, Resolving))
	assert.True(t, CanTransition(Resolving, Failed))
	assert.True(t, CanTransition(Streaming, Draining))
	assert.True(t, CanTransition(Draining, TimedOut))
	assert.True(t, CanTransition(Draining, Completed))

	assert.False(t, CanTransition(Idle, Streaming))
	assert.False(t, CanTransition(Streaming, Completed), "readers must be joined first")
	assert.False(t, CanTransition(Completed, Failed))
	assert.False(t, CanTransition(TimedOut, Draining))
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, s := range AllStates() {
		if s.IsTerminal() {
			assert.Empty(t, ValidTransitions[s], "terminal state %s should have no transitions", s)
		}
	}
}

func TestParse(t *testing.T) {
	s, ok := Parse("draining")
	require.True(t, ok)
	assert.Equal(t, Draining, s)

	_, ok = Parse("cancelled")
	assert.False(t, ok)
}

func TestMachine(t *testing.T) {
	m := NewMachine()
	require.Equal(t, Idle, m.State())

	for _, next := range []State{Resolving, Spawning, Streaming, Draining, Completed} {
		require.NoError(t, m.To(next))
	}
	assert.Equal(t, Completed, m.State())

	err := m.To(Failed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completed -> failed")
	assert.Equal(t, Completed, m.State())

	hist := m.History()
	require.Len(t, hist, 5)
	assert.Equal(t, Idle, hist[0].From)
	assert.Equal(t, Completed, hist[4].To)
}

func TestMachineConcurrentReads(t *testing.T) {
	m := NewMachine()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.State()
			}
		}()
	}
	require.NoError(t, m.To(Resolving))
	wg.Wait()
	assert.Equal(t, Resolving, m.State())
}
