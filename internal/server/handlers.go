package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clareza/clareza/internal/api"
	"github.com/clareza/clareza/internal/checks"
	"github.com/clareza/clareza/internal/history"
	"github.com/clareza/clareza/internal/logging"
)

// handleListHistory returns paginated session history.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "history_unavailable", "History storage not configured")
		return
	}
	page, ok := api.QueryInt(w, r, "page", 1, 1_000_000, 1)
	if !ok {
		return
	}
	limit, ok := api.QueryInt(w, r, "limit", 1, 100, 20)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, s.History.List(history.ListOptions{Page: page, Limit: limit}))
}

// handleGetHistory returns a single history entry.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "history_unavailable", "History storage not configured")
		return
	}
	entry, err := s.History.Get(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusNotFound, api.CodeNotFound, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, entry)
}

// handleGetTranscript returns every event a session emitted.
func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "history_unavailable", "History storage not configured")
		return
	}
	id := chi.URLParam(r, "id")
	events, err := s.History.GetTranscript(id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, err.Error())
			return
		}
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"session_id": id, "events": events})
}

// handleCheck reports whether a tool is installed.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	res, err := s.Checker.Check(r.Context(), chi.URLParam(r, "tool"))
	if err != nil {
		if errors.Is(err, checks.ErrUnknownTool) {
			api.WriteError(w, http.StatusNotFound, api.CodeNotFound, err.Error())
			return
		}
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

// handleLogs returns log entries with optional filtering.
// Query params:
//   - level: minimum log level (debug, info, warn, error)
//   - session_id: filter by session ID
//   - component: filter by component
//   - since, until: RFC3339 bounds
//   - limit: max entries to return (default 100)
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := logging.Query{
		SessionID: r.URL.Query().Get("session_id"),
		Component: r.URL.Query().Get("component"),
	}
	if level := r.URL.Query().Get("level"); level != "" {
		q.Level = logging.ParseLevel(level)
	}

	var err error
	if q.Since, err = api.ParseTimeParam(r.URL.Query().Get("since")); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidation, "since "+err.Error())
		return
	}
	if q.Until, err = api.ParseTimeParam(r.URL.Query().Get("until")); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidation, "until "+err.Error())
		return
	}
	limit, ok := api.QueryInt(w, r, "limit", 1, 10_000, 100)
	if !ok {
		return
	}
	q.Limit = limit

	api.WriteJSON(w, http.StatusOK, s.Log.Query(q))
}

// handleLogStats returns log statistics without entries.
func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.Log.Stats())
}
