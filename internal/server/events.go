package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/clareza/clareza/internal/api"
	"github.com/clareza/clareza/internal/stream"
)

// handleEvents streams notifications as server-sent events. The event id is
// the notification index; a reconnecting client sends it back in
// Last-Event-ID (or ?since=) and receives what it missed from the replay
// buffer.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternal, "Streaming unsupported")
		return
	}

	since := r.Header.Get("Last-Event-ID")
	if since == "" {
		since = r.URL.Query().Get("since")
	}
	var after int64
	if since != "" {
		v, err := strconv.ParseInt(since, 10, 64)
		if err != nil || v < 0 {
			api.WriteError(w, http.StatusBadRequest, api.CodeValidation, "since must be a non-negative integer")
			return
		}
		after = v
	}

	sub, replay := s.Dispatcher.Subscribe(after)
	defer s.Dispatcher.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, n := range replay {
		if err := writeEvent(w, n); err != nil {
			return
		}
	}
	flusher.Flush()

	ping := time.NewTicker(s.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(w, n); err != nil {
				return
			}
			flusher.Flush()
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, n stream.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", n.Index, n.Name, data)
	return err
}
