package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clareza/clareza/internal/api"
	"github.com/clareza/clareza/internal/bridge"
)

// writeBridgeError maps bridge failures to HTTP responses.
func writeBridgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrInvalidModel):
		api.WriteError(w, http.StatusBadRequest, api.CodeInvalidModel, err.Error())
	case errors.Is(err, bridge.ErrAlreadyRunning):
		api.WriteError(w, http.StatusConflict, api.CodeAlreadyRunning, err.Error())
	case errors.Is(err, bridge.ErrUnknownSession):
		api.WriteError(w, http.StatusNotFound, api.CodeNotFound, err.Error())
	case errors.Is(err, bridge.ErrNotRunning):
		api.WriteError(w, http.StatusConflict, api.CodeNotRunning, err.Error())
	case errors.Is(err, bridge.ErrNotFound):
		api.WriteError(w, http.StatusServiceUnavailable, api.CodeToolNotFound, err.Error())
	case errors.Is(err, bridge.ErrShuttingDown):
		api.WriteError(w, http.StatusServiceUnavailable, api.CodeUnavailable, err.Error())
	case errors.Is(err, bridge.ErrSpawn):
		api.WriteError(w, http.StatusInternalServerError, api.CodeSpawnFailed, err.Error())
	default:
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, err.Error())
	}
}

// handlePrompt hands a prompt to the configured bridge. Output arrives on
// /events; the response only carries the session id.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var req api.PromptRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidation, err.Error())
		return
	}

	model := s.Models.Get()
	id, err := s.Bridge.Submit(r.Context(), bridge.PromptRequest{
		UserText:        req.Prompt,
		InjectedContent: req.FileContent,
	})
	if err != nil {
		s.log.Warn("prompt rejected", map[string]any{"error": err.Error(), "mode": s.Bridge.Mode()})
		writeBridgeError(w, err)
		return
	}

	s.log.Info("prompt accepted", map[string]any{
		"session_id":  id,
		"mode":        s.Bridge.Mode(),
		"has_content": req.FileContent != nil,
	})
	api.WriteJSON(w, http.StatusAccepted, api.SessionAccepted{
		SessionID: id,
		Mode:      s.Bridge.Mode(),
		Model:     model,
	})
}

// handleListSessions returns the one-shot sessions still in flight.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]any{"sessions": s.OneShot.Active()})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.OneShot.Cancel(id); err != nil {
		writeBridgeError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, map[string]string{"session_id": id, "status": "cancelling"})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, api.ModelResponse{Model: s.Models.Get(), Allowed: s.Models.Allowed()})
}

func (s *Server) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var req api.ModelRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidation, err.Error())
		return
	}
	if err := s.Models.Set(req.Model); err != nil {
		writeBridgeError(w, err)
		return
	}
	s.log.Info("model changed", map[string]any{"model": req.Model})
	api.WriteJSON(w, http.StatusOK, api.ModelResponse{Model: s.Models.Get(), Allowed: s.Models.Allowed()})
}

func (s *Server) handleInteractiveStatus(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.Interactive.Status())
}

func (s *Server) handleInteractiveStart(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Interactive.Start(r.Context()); err != nil {
		writeBridgeError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, s.Interactive.Status())
}

func (s *Server) handleInteractiveSend(w http.ResponseWriter, r *http.Request) {
	var req api.SendRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidation, err.Error())
		return
	}
	if err := s.Interactive.Send(req.Text); err != nil {
		writeBridgeError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (s *Server) handleInteractiveStop(w http.ResponseWriter, r *http.Request) {
	if err := s.Interactive.Stop(); err != nil {
		writeBridgeError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, s.Interactive.Status())
}
