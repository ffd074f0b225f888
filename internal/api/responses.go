package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/depo-engine/internal/align"
	"github.com/snarg/depo-engine/internal/database"
	"github.com/snarg/depo-engine/internal/resync"
	"github.com/snarg/depo-engine/internal/transcript"
)

// maxBodyBytes caps request bodies; long depositions run to a few MB of JSON.
const maxBodyBytes = 32 << 20

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// WriteServiceError maps engine, store and alignment errors to a status.
// Anything unrecognised is logged and reported as a 500.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var alignErr *align.AlignmentError
	switch {
	case errors.Is(err, transcript.ErrNoUsableTurns),
		errors.Is(err, transcript.ErrInvalidLinesPerPage):
		WriteErrorDetail(w, http.StatusBadRequest, "invalid transcript", err.Error())
	case errors.Is(err, database.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, resync.ErrAlignmentInFlight):
		WriteErrorDetail(w, http.StatusConflict, "alignment already in progress", err.Error())
	case errors.Is(err, align.ErrNoAlignableText):
		WriteErrorDetail(w, http.StatusUnprocessableEntity, "nothing to align", err.Error())
	case errors.Is(err, resync.ErrQueueFull), errors.Is(err, resync.ErrStopped):
		WriteErrorDetail(w, http.StatusServiceUnavailable, "resync unavailable", err.Error())
	case errors.As(err, &alignErr):
		WriteErrorDetail(w, http.StatusBadGateway, "alignment failed", err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// QueryInt extracts an integer query parameter. Returns 0, false if missing or invalid.
func QueryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// QueryString extracts a non-empty string query parameter.
func QueryString(r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", false
	}
	return v, true
}

// ParseLimit reads ?limit=, defaulting to def and clamping to [1, max].
func ParseLimit(r *http.Request, def, max int) int {
	n, ok := QueryInt(r, "limit")
	if !ok || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// PathInt64 extracts an int64 from a chi URL parameter.
func PathInt64(r *http.Request, name string) (int64, error) {
	v := chi.URLParam(r, name)
	if v == "" {
		return 0, fmt.Errorf("missing path parameter: %s", name)
	}
	return strconv.ParseInt(v, 10, 64)
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
