// Package server exposes the bridge, the document store and the supporting
// services to the editor UI over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clareza/clareza/internal/api"
	"github.com/clareza/clareza/internal/bridge"
	"github.com/clareza/clareza/internal/checks"
	"github.com/clareza/clareza/internal/config"
	"github.com/clareza/clareza/internal/dispatch"
	"github.com/clareza/clareza/internal/document"
	"github.com/clareza/clareza/internal/history"
	"github.com/clareza/clareza/internal/logging"
	"github.com/clareza/clareza/internal/metrics"
	"github.com/clareza/clareza/internal/recent"
	"github.com/clareza/clareza/internal/scheduler"
)

// Deps are the services the server exposes. History, Recent and Scheduler
// are optional.
type Deps struct {
	Config      *config.Config
	Version     string
	Log         *logging.Logger
	Bridge      bridge.Bridge
	OneShot     *bridge.OneShot
	Interactive *bridge.Interactive
	Models      *bridge.ModelConfig
	Dispatcher  *dispatch.Dispatcher
	Documents   *document.Store
	Recent      *recent.Store
	History     *history.Store
	Scheduler   *scheduler.Scheduler
	Checker     checks.Checker
}

// Server is the backend HTTP server
type Server struct {
	Deps
	startTime time.Time
	log       *logging.Logger
	server    *http.Server

	keepAlive time.Duration // SSE comment interval
}

// StatusResponse represents the /status response
type StatusResponse struct {
	Version        string                   `json:"version"`
	UptimeSeconds  float64                  `json:"uptime_seconds"`
	Mode           string                   `json:"mode"`
	Model          string                   `json:"model"`
	Delivery       string                   `json:"prompt_delivery"`
	ActiveSessions []bridge.SessionInfo     `json:"active_sessions"`
	Interactive    bridge.InteractiveStatus `json:"interactive"`
	Subscribers    int                      `json:"subscribers"`
	Scheduler      *scheduler.Status        `json:"scheduler,omitempty"`
}

// New creates a server
func New(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = logging.Discard()
	}
	if deps.Checker.Log == nil {
		deps.Checker.Log = deps.Log
	}
	return &Server{
		Deps:      deps,
		startTime: time.Now(),
		log:       deps.Log.Named("server"),
		keepAlive: 15 * time.Second,
	}
}

// Router returns the HTTP router
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Get("/status", s.handleStatus)
	r.Get("/events", s.handleEvents)

	// Bridge endpoints
	r.Post("/prompt", s.handlePrompt)
	r.Get("/sessions", s.handleListSessions)
	r.Post("/sessions/{id}/cancel", s.handleCancelSession)
	r.Get("/model", s.handleGetModel)
	r.Put("/model", s.handleSetModel)
	r.Route("/interactive", func(r chi.Router) {
		r.Get("/", s.handleInteractiveStatus)
		r.Post("/start", s.handleInteractiveStart)
		r.Post("/send", s.handleInteractiveSend)
		r.Post("/stop", s.handleInteractiveStop)
	})

	// Document endpoints
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", s.handleCreateDocument)
		r.Post("/open", s.handleOpenDocument)
		r.Post("/save", s.handleSaveDocument)
		r.Post("/save-as", s.handleSaveDocumentAs)
		r.Post("/export", s.handleExportDocument)
		r.Post("/validate", s.handleValidatePath)
		r.Get("/versions", s.handleListVersions)
		r.Get("/versions/{id}", s.handleGetVersion)
		r.Post("/backups", s.handleCreateBackup)
		r.Get("/backups", s.handleListBackups)
		r.Get("/backups/schedule", s.handleBackupSchedule)
		r.Post("/backups/run", s.handleRunBackups)
		r.Post("/restore", s.handleRestoreBackup)
		r.Get("/recent", s.handleRecentFiles)
	})

	// History endpoints
	r.Get("/history", s.handleListHistory)
	r.Get("/history/{id}", s.handleGetHistory)
	r.Get("/history/{id}/transcript", s.handleGetTranscript)

	r.Get("/checks/{tool}", s.handleCheck)

	// Logging endpoints
	r.Get("/logs", s.handleLogs)
	r.Get("/logs/stats", s.handleLogStats)

	r.Handle("/metrics", metrics.Handler())
	return r
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.Config.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("server starting", map[string]any{
		"addr":    s.server.Addr,
		"version": s.Version,
		"mode":    s.Bridge.Mode(),
		"model":   s.Models.Get(),
	})
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes the event streams.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleStatus returns the backend state, uptime and bridge configuration.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Version:        s.Version,
		UptimeSeconds:  time.Since(s.startTime).Seconds(),
		Mode:           s.Bridge.Mode(),
		Model:          s.Models.Get(),
		Delivery:       s.Config.Bridge.PromptDelivery,
		ActiveSessions: []bridge.SessionInfo{},
		Subscribers:    s.Dispatcher.Subscribers(),
	}
	if s.OneShot != nil {
		resp.ActiveSessions = s.OneShot.Active()
	}
	if s.Interactive != nil {
		resp.Interactive = s.Interactive.Status()
	}
	if s.Scheduler != nil {
		st := s.Scheduler.Status()
		resp.Scheduler = &st
	}
	api.WriteJSON(w, http.StatusOK, resp)
}
