package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clareza/clareza/internal/api"
	"github.com/clareza/clareza/internal/document"
	"github.com/clareza/clareza/internal/scheduler"
)

type createDocumentRequest struct {
	Title string `json:"title"`
}

type pathRequest struct {
	Path string `json:"path"`
}

type saveRequest struct {
	Path     string             `json:"path"`
	Content  string             `json:"content"`
	Metadata *document.Metadata `json:"metadata,omitempty"`
}

type saveAsRequest struct {
	Content       string             `json:"content"`
	SuggestedName string             `json:"suggested_name,omitempty"`
	Metadata      *document.Metadata `json:"metadata,omitempty"`
}

type exportRequest struct {
	Content    string                 `json:"content"`
	Options    document.ExportOptions `json:"options"`
	OutputPath string                 `json:"output_path"`
}

type restoreRequest struct {
	BackupPath string `json:"backup_path"`
	TargetPath string `json:"target_path"`
}

// writeDocumentError maps document store failures to HTTP responses.
func writeDocumentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, document.ErrNotFound):
		api.WriteError(w, http.StatusNotFound, api.CodeNotFound, err.Error())
	case errors.Is(err, document.ErrPath):
		api.WriteError(w, http.StatusBadRequest, api.CodePath, err.Error())
	case errors.Is(err, document.ErrDecode):
		api.WriteError(w, http.StatusUnprocessableEntity, api.CodeDecode, err.Error())
	case errors.Is(err, document.ErrExport):
		api.WriteError(w, http.StatusBadRequest, api.CodeExport, err.Error())
	default:
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, err.Error())
	}
}

// decode reads a JSON body and writes a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := api.DecodeJSON(r, v); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidation, err.Error())
		return false
	}
	return true
}

// touchRecent records a document in the recent list. Failures are logged
// only.
func (s *Server) touchRecent(ctx context.Context, f *document.File) {
	if s.Recent == nil || f == nil {
		return
	}
	title := ""
	if f.Metadata != nil {
		title = f.Metadata.Title
	}
	if err := s.Recent.Touch(ctx, f.Path, title); err != nil {
		s.log.Warn("failed to update recent files", map[string]any{"path": f.Path, "error": err.Error()})
	}
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	api.WriteJSON(w, http.StatusCreated, s.Documents.Create(req.Title))
}

func (s *Server) handleOpenDocument(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := s.Documents.Open(req.Path)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	s.touchRecent(r.Context(), f)
	api.WriteJSON(w, http.StatusOK, f)
}

func (s *Server) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := s.Documents.Save(req.Path, req.Content, req.Metadata)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	s.touchRecent(r.Context(), f)
	api.WriteJSON(w, http.StatusOK, f)
}

func (s *Server) handleSaveDocumentAs(w http.ResponseWriter, r *http.Request) {
	var req saveAsRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := s.Documents.SaveAs(req.Content, req.SuggestedName, req.Metadata)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	s.touchRecent(r.Context(), f)
	api.WriteJSON(w, http.StatusOK, f)
}

func (s *Server) handleExportDocument(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := s.Documents.Export(req.Content, req.Options, req.OutputPath)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, f)
}

func (s *Server) handleValidatePath(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"valid": document.ValidatePath(req.Path)})
}

// queryPath reads the required path query parameter.
func queryPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := r.URL.Query().Get("path")
	if p == "" {
		api.WriteError(w, http.StatusBadRequest, api.CodeValidation, "path is required")
		return "", false
	}
	return p, true
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	versions, err := s.Documents.ListVersions(path)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	content, err := s.Documents.ReadVersion(path, id)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"id": id, "content": content})
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	info, err := s.Documents.CreateBackup(req.Path)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	path, ok := queryPath(w, r)
	if !ok {
		return
	}
	backups, err := s.Documents.ListBackups(path)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"backups": backups})
}

func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !decode(w, r, &req) {
		return
	}
	f, err := s.Documents.RestoreBackup(req.BackupPath, req.TargetPath)
	if err != nil {
		writeDocumentError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, f)
}

func (s *Server) handleBackupSchedule(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		api.WriteError(w, http.StatusServiceUnavailable, api.CodeUnavailable, "Automatic backups disabled")
		return
	}
	api.WriteJSON(w, http.StatusOK, s.Scheduler.Status())
}

func (s *Server) handleRunBackups(w http.ResponseWriter, r *http.Request) {
	if s.Scheduler == nil {
		api.WriteError(w, http.StatusServiceUnavailable, api.CodeUnavailable, "Automatic backups disabled")
		return
	}
	res := s.Scheduler.RunOnce(r.Context(), scheduler.TriggerManual)
	status := http.StatusOK
	if res.Status == scheduler.StatusSkippedBusy {
		status = http.StatusConflict
	}
	api.WriteJSON(w, status, res)
}

func (s *Server) handleRecentFiles(w http.ResponseWriter, r *http.Request) {
	if s.Recent == nil {
		api.WriteJSON(w, http.StatusOK, map[string]any{"files": []any{}})
		return
	}
	limit, ok := api.QueryInt(w, r, "limit", 1, 100, 10)
	if !ok {
		return
	}
	files, err := s.Recent.List(r.Context(), limit)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"files": files})
}
