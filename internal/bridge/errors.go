package bridge

import (
	"context"
	"errors"
)

// Failure kinds. Errors returned by this package wrap one of these and are
// matched with errors.Is. Nothing in the bridge retries on any of them.
var (
	ErrNotFound       = errors.New("executable not found")
	ErrSpawn          = errors.New("failed to start process")
	ErrNonZeroExit    = errors.New("process exited with non-zero status")
	ErrTimeout        = errors.New("session timed out")
	ErrInvalidModel   = errors.New("invalid model")
	ErrAlreadyRunning = errors.New("interactive session already running")
	ErrNotRunning     = errors.New("interactive session not running")
	ErrUnknownSession = errors.New("no such active session")
	ErrShuttingDown   = errors.New("bridge is shutting down")
)

// ErrorType returns a short stable name for err, used in history records and
// metrics labels.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSpawn):
		return "spawn_error"
	case errors.Is(err, ErrNonZeroExit):
		return "non_zero_exit"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrInvalidModel):
		return "invalid_model"
	case errors.Is(err, ErrShuttingDown):
		return "shutting_down"
	default:
		return "internal"
	}
}
