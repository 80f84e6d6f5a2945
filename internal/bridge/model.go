package bridge

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/clareza/clareza/internal/config"
)

// ModelConfig holds the model used by new sessions. Sessions read it once at
// start, so a change never affects a session already running.
type ModelConfig struct {
	mu      sync.RWMutex
	current string
	allowed []string
}

// NewModelConfig returns a config set to initial, or to the default model
// when initial is empty.
func NewModelConfig(initial string) (*ModelConfig, error) {
	m := &ModelConfig{current: config.Models[0], allowed: slices.Clone(config.Models)}
	if initial != "" {
		if err := m.Set(initial); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Get returns the current model.
func (m *ModelConfig) Get() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Set replaces the current model. Identifiers outside the allow-list are
// rejected and leave the current value unchanged.
func (m *ModelConfig) Set(candidate string) error {
	if !slices.Contains(m.allowed, candidate) {
		return fmt.Errorf("%w %q, valid models: %s", ErrInvalidModel, candidate, strings.Join(m.allowed, ", "))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = candidate
	return nil
}

// Allowed returns the accepted model identifiers.
func (m *ModelConfig) Allowed() []string {
	return slices.Clone(m.allowed)
}
