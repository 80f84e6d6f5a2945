// Package api defines shared types and constants for the clareza backend.
package api

// Bridge modes select which strategy serves prompt submissions.
const (
	ModeOneShot     = "oneshot"
	ModeInteractive = "interactive"
)

// Prompt delivery selects how a one-shot prompt reaches the tool.
const (
	DeliveryStdin    = "stdin"
	DeliveryArgument = "argument"
)

// Error codes returned in JSON error bodies.
const (
	CodeValidation     = "validation_error"
	CodeNotFound       = "not_found"
	CodeInvalidModel   = "invalid_model"
	CodeAlreadyRunning = "already_running"
	CodeNotRunning     = "not_running"
	CodeToolNotFound   = "tool_not_found"
	CodeSpawnFailed    = "spawn_failed"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal_error"
	CodeDecode         = "invalid_format"
	CodeExport         = "export_error"
	CodePath           = "invalid_path"
)

// PromptRequest is the body of POST /prompt.
type PromptRequest struct {
	Prompt      string  `json:"prompt"`
	FileContent *string `json:"file_content,omitempty"`
}

// SessionAccepted is returned when a prompt has been handed to the bridge.
type SessionAccepted struct {
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
	Model     string `json:"model"`
}

// ModelRequest is the body of PUT /model.
type ModelRequest struct {
	Model string `json:"model"`
}

// ModelResponse describes the active model and the accepted identifiers.
type ModelResponse struct {
	Model   string   `json:"model"`
	Allowed []string `json:"allowed"`
}

// SendRequest is the body of POST /interactive/send.
type SendRequest struct {
	Text string `json:"text"`
}
