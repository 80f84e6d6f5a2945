package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/history/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history/abc", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/history/{id}", "418"))
	assert.Equal(t, before+1, after)
}

func TestSessionRecorders(t *testing.T) {
	active := testutil.ToFloat64(SessionsActive)
	total := testutil.ToFloat64(SessionsTotal.WithLabelValues("completed"))

	RecordSessionStart()
	assert.Equal(t, active+1, testutil.ToFloat64(SessionsActive))

	RecordSessionEnd("completed", 2*time.Second)
	assert.Equal(t, active, testutil.ToFloat64(SessionsActive))
	assert.Equal(t, total+1, testutil.ToFloat64(SessionsTotal.WithLabelValues("completed")))
}

func TestRecordBackupStatus(t *testing.T) {
	ok := testutil.ToFloat64(BackupsTotal.WithLabelValues("manual", "ok"))
	failed := testutil.ToFloat64(BackupsTotal.WithLabelValues("manual", "error"))

	RecordBackup("manual", nil)
	RecordBackup("manual", errors.New("disk full"))

	assert.Equal(t, ok+1, testutil.ToFloat64(BackupsTotal.WithLabelValues("manual", "ok")))
	assert.Equal(t, failed+1, testutil.ToFloat64(BackupsTotal.WithLabelValues("manual", "error")))
}

func TestInteractiveGauge(t *testing.T) {
	SetInteractiveRunning(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(InteractiveRunning))
	SetInteractiveRunning(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(InteractiveRunning))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordDrop()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "clareza_notifications_dropped_total"))
}
