package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    int
		wantErr string
	}{
		{name: "empty uses default", value: "", want: 20},
		{name: "in range", value: "5", want: 5},
		{name: "lower bound", value: "1", want: 1},
		{name: "upper bound", value: "100", want: 100},
		{name: "not a number", value: "abc", wantErr: "must be a valid integer"},
		{name: "too small", value: "0", wantErr: "must be between 1 and 100"},
		{name: "too large", value: "101", wantErr: "must be between 1 and 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseIntParam(tt.value, 1, 100, 20)
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseTimeParam(t *testing.T) {
	t.Parallel()

	got, err := ParseTimeParam("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = ParseTimeParam("2026-01-02T03:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), got)

	_, err = ParseTimeParam("yesterday")
	require.Error(t, err)
}

func TestQueryInt(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/history?limit=500", nil)
	_, ok := QueryInt(rec, req, "limit", 1, 100, 20)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "limit must be between 1 and 100")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/history?limit=7", nil)
	v, ok := QueryInt(rec, req, "limit", 1, 100, 20)
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}
