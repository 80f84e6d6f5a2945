package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ParseIntParam parses an integer query parameter bounded to [lo, hi].
// An empty value yields def.
func ParseIntParam(value string, lo, hi, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("must be a valid integer")
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("must be between %d and %d", lo, hi)
	}
	return v, nil
}

// ParseTimeParam parses an RFC3339 query parameter. An empty value yields the
// zero time.
func ParseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be an RFC3339 timestamp")
	}
	return t, nil
}

// QueryInt reads and validates an integer query parameter, writing a 400
// response on failure. The boolean reports whether the handler may continue.
func QueryInt(w http.ResponseWriter, r *http.Request, name string, lo, hi, def int) (int, bool) {
	v, err := ParseIntParam(r.URL.Query().Get(name), lo, hi, def)
	if err != nil {
		WriteError(w, http.StatusBadRequest, CodeValidation, name+" "+err.Error())
		return 0, false
	}
	return v, true
}
