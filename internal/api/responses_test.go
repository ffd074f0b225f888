package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/depo-engine/internal/align"
	"github.com/snarg/depo-engine/internal/database"
	"github.com/snarg/depo-engine/internal/resync"
	"github.com/snarg/depo-engine/internal/transcript"
)

// ── WriteServiceError ────────────────────────────────────────────────

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no_usable_turns", transcript.ErrNoUsableTurns, http.StatusBadRequest},
		{"bad_lines_per_page", fmt.Errorf("%w: got 120", transcript.ErrInvalidLinesPerPage), http.StatusBadRequest},
		{"not_found", database.ErrNotFound, http.StatusNotFound},
		{"in_flight", fmt.Errorf("%w (job x)", resync.ErrAlignmentInFlight), http.StatusConflict},
		{"no_alignable_text", &align.AlignmentError{Op: "prepare", Err: align.ErrNoAlignableText}, http.StatusUnprocessableEntity},
		{"queue_full", resync.ErrQueueFull, http.StatusServiceUnavailable},
		{"alignment_failed", &align.AlignmentError{Op: "poll", JobID: "j", Err: align.ErrAlignmentFailed}, http.StatusBadGateway},
		{"alignment_timeout", &align.AlignmentError{Op: "poll", Err: align.ErrAlignmentTimeout}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/", nil)
			WriteServiceError(rec, req, tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not valid JSON: %v", err)
			}
			if body.Error == "" {
				t.Error("empty error message")
			}
			if tt.want == http.StatusInternalServerError && body.Detail != "" {
				t.Errorf("internal error leaked detail %q", body.Detail)
			}
		})
	}
}

// ── ParseLimit ───────────────────────────────────────────────────────

func TestParseLimit(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"default", "", 50},
		{"custom", "limit=25", 25},
		{"over_max_clamps", "limit=2000", 500},
		{"zero_uses_default", "limit=0", 50},
		{"non_numeric_uses_default", "limit=abc", 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?"+tt.query, nil)
			if got := ParseLimit(req, 50, 500); got != tt.want {
				t.Errorf("ParseLimit = %d, want %d", got, tt.want)
			}
		})
	}
}

// ── PathInt64 ────────────────────────────────────────────────────────

func TestPathInt64(t *testing.T) {
	withParam := func(v string) *http.Request {
		req := httptest.NewRequest("GET", "/", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", v)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	if n, err := PathInt64(withParam("42"), "id"); err != nil || n != 42 {
		t.Errorf("PathInt64(42) = %d, %v", n, err)
	}
	if _, err := PathInt64(withParam("abc"), "id"); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if _, err := PathInt64(httptest.NewRequest("GET", "/", nil), "id"); err == nil {
		t.Error("expected error for missing parameter")
	}
}

// ── DecodeJSON ───────────────────────────────────────────────────────

func TestDecodeJSON(t *testing.T) {
	var v struct {
		AudioDuration float64 `json:"audio_duration"`
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"audio_duration": 12.5}`))
	if err := DecodeJSON(rec, req, &v); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if v.AudioDuration != 12.5 {
		t.Errorf("AudioDuration = %v", v.AudioDuration)
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"audio_duration":`))
	if err := DecodeJSON(rec, req, &v); err == nil {
		t.Error("expected error for truncated body")
	}
}
