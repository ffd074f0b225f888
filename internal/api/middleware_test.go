package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// exportHandler stands in for the OnCue export route.
var exportHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", `"abc"`)
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))

	rec := serve(h, "POST", "/api/v1/paginate", nil)
	id := rec.Header().Get("X-Request-ID")
	if len(id) != 16 || seen != id {
		t.Errorf("generated id %q, handler saw %q", id, seen)
	}

	rec = serve(h, "POST", "/api/v1/paginate", map[string]string{"X-Request-ID": "depo-42"})
	if got := rec.Header().Get("X-Request-ID"); got != "depo-42" || seen != "depo-42" {
		t.Errorf("caller id not kept: response %q, handler %q", got, seen)
	}
}

func TestCORSWithOrigins(t *testing.T) {
	const editor = "https://editor.example"
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"open_get", nil, "GET", editor, http.StatusOK, "*"},
		{"open_preflight", nil, "OPTIONS", editor, http.StatusNoContent, "*"},
		{"listed_get", []string{editor}, "GET", editor, http.StatusOK, editor},
		{"listed_preflight", []string{editor}, "OPTIONS", editor, http.StatusNoContent, editor},
		{"unlisted_get_still_served", []string{editor}, "GET", "https://other.example", http.StatusOK, ""},
		{"unlisted_preflight_refused", []string{editor}, "OPTIONS", "https://other.example", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(CORSWithOrigins(tt.origins)(exportHandler), tt.method, "/api/v1/export/oncue",
				map[string]string{"Origin": tt.origin})
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if tt.wantAllow == "" {
				return
			}
			// Editors revalidate exports with If-None-Match and read the ETag back.
			if h := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(h, "If-None-Match") {
				t.Errorf("Allow-Headers = %q, missing If-None-Match", h)
			}
			if h := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(h, "ETag") {
				t.Errorf("Expose-Headers = %q, missing ETag", h)
			}
			if tt.wantAllow != "*" && rec.Header().Get("Vary") != "Origin" {
				t.Error("echoed origin without Vary: Origin")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	h := RateLimiter(1, 2)(exportHandler)
	from := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/export/oncue", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := from("10.0.0.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("burst request %d: status = %d", i, rec.Code)
		}
	}
	rec := from("10.0.0.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over burst: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", rec.Header().Get("Retry-After"))
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
		t.Errorf("429 body = %q", rec.Body)
	}

	if rec := from("10.0.0.2:5000"); rec.Code != http.StatusOK {
		t.Errorf("second client throttled by the first: status = %d", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		target string
		header string
		want   int
	}{
		{"no_token_configured", "", "/api/v1/paginate", "", http.StatusOK},
		{"matching_bearer", "s3cret", "/api/v1/paginate", "Bearer s3cret", http.StatusOK},
		{"wrong_bearer", "s3cret", "/api/v1/paginate", "Bearer nope", http.StatusUnauthorized},
		{"missing_header", "s3cret", "/api/v1/paginate", "", http.StatusUnauthorized},
		{"basic_scheme", "s3cret", "/api/v1/paginate", "Basic czNjcmV0", http.StatusUnauthorized},
		{"query_token_ignored", "s3cret", "/api/v1/paginate?token=s3cret", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			if rec := serve(BearerAuth(tt.token)(exportHandler), "POST", tt.target, headers); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestLoggerTagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := serve(RequestID(Logger(zerolog.New(&buf))(inner)), "GET", "/api/v1/health", nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("access log is not JSON: %v (%q)", err, buf.String())
	}
	if entry["request_id"] != rec.Header().Get("X-Request-ID") {
		t.Errorf("request_id = %v, want %q", entry["request_id"], rec.Header().Get("X-Request-ID"))
	}
	if entry["status"] != float64(http.StatusTeapot) || entry["path"] != "/api/v1/health" {
		t.Errorf("unexpected access log entry: %v", entry)
	}
}

func TestRecoverer(t *testing.T) {
	if rec := serve(Recoverer(exportHandler), "GET", "/", nil); rec.Code != http.StatusOK {
		t.Errorf("pass-through status = %d", rec.Code)
	}

	panicker := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("paginate blew up")
	})
	rec := serve(Recoverer(panicker), "POST", "/api/v1/paginate", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error != "internal server error" {
		t.Errorf("body = %q", rec.Body)
	}
	if strings.Contains(rec.Body.String(), "blew up") {
		t.Error("panic value leaked to the client")
	}
}
