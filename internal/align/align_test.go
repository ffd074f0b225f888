package align

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/snarg/depo-engine/internal/storage"
	"github.com/snarg/depo-engine/internal/transcript"
)

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello,", []string{"hello"}},
		{"well-known", []string{"well", "known"}},
		{"don’t", []string{"dont"}},
		{"and/or", []string{"and", "or"}},
		{"—", nil},
		{"__x__", []string{"x"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := NormalizeToken(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("NormalizeToken(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFlatten(t *testing.T) {
	tokens, speakers := Flatten([]transcript.Turn{
		{Speaker: "A", Text: "Hi there."},
		{Speaker: "B", Text: "You OK -- well-known?"},
	})
	wantTokens := []string{"hi", "there", "you", "ok", "well", "known"}
	wantSpeakers := []string{"A", "A", "B", "B", "B", "B"}
	if !reflect.DeepEqual(tokens, wantTokens) {
		t.Errorf("tokens = %v, want %v", tokens, wantTokens)
	}
	if !reflect.DeepEqual(speakers, wantSpeakers) {
		t.Errorf("speakers = %v, want %v", speakers, wantSpeakers)
	}
}

func sec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestReconstruct_PreservesSpeakerBoundaries(t *testing.T) {
	_, speakers := Flatten([]transcript.Turn{
		{Speaker: "A", Text: "hi there"},
		{Speaker: "B", Text: "you ok"},
	})
	elements := []Element{
		{Type: "text", Value: "Hi", Ts: sec("0.1"), EndTs: sec("0.4")},
		{Type: "punct", Value: " "},
		{Type: "text", Value: "there", Ts: sec("0.45"), EndTs: sec("0.9")},
		{Type: "text", Value: "you", Ts: sec("1.5"), EndTs: sec("1.7")},
		{Type: "text", Value: "okay", Ts: sec("1.75"), EndTs: sec("2.1")},
	}

	turns := Reconstruct(elements, speakers)
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Speaker != "A" || turns[0].Text != "Hi there" {
		t.Errorf("turn 0 = %q/%q", turns[0].Speaker, turns[0].Text)
	}
	if turns[1].Speaker != "B" || turns[1].Text != "you okay" {
		t.Errorf("turn 1 = %q/%q", turns[1].Speaker, turns[1].Text)
	}
	if turns[0].IsContinuation || turns[1].IsContinuation {
		t.Error("speaker-change turns marked as continuations")
	}
	if *turns[1].Words[0].Start != 1500 || *turns[1].Words[1].End != 2100 {
		t.Errorf("turn 1 timing = %v..%v", *turns[1].Words[0].Start, *turns[1].Words[1].End)
	}
	if turns[1].Timestamp != "[00:02]" {
		t.Errorf("turn 1 timestamp = %q", turns[1].Timestamp)
	}
}

func TestReconstruct_MissingTimestamps(t *testing.T) {
	elements := []Element{
		{Type: "text", Value: "one"},
		{Type: "text", Value: "two", Ts: sec("0.29"), EndTs: sec("1.2")},
		{Type: "text", Value: "three"},
		{Type: "text", Value: "four", Ts: sec("2")},
	}
	turns := Reconstruct(elements, []string{"A", "A", "A", "A"})
	w := turns[0].Words

	check := func(i int, start, end float64) {
		t.Helper()
		if *w[i].Start != start || *w[i].End != end {
			t.Errorf("word %d = %v..%v, want %v..%v", i, *w[i].Start, *w[i].End, start, end)
		}
	}
	check(0, 0, 0)
	check(1, 290, 1200)
	check(2, 1200, 1200)
	check(3, 2000, 2000)
}

func TestReconstruct_OverrunReusesLastSpeaker(t *testing.T) {
	elements := []Element{
		{Type: "text", Value: "a", Ts: sec("0"), EndTs: sec("1")},
		{Type: "text", Value: "b", Ts: sec("1"), EndTs: sec("2")},
		{Type: "text", Value: "c", Ts: sec("2"), EndTs: sec("3")},
		{Type: "text", Value: "d", Ts: sec("3"), EndTs: sec("4")},
	}
	turns := Reconstruct(elements, []string{"A", "B"})
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[1].Speaker != "B" || turns[1].Text != "b c d" {
		t.Errorf("turn 1 = %+v", turns[1])
	}
}

// fakeAligner scripts job statuses and records what was submitted.
type fakeAligner struct {
	mu            sync.Mutex
	statuses      []string
	polls         int
	audioURL      string
	transcriptURL string
	result        *Transcript
	failure       string
}

func (f *fakeAligner) Submit(ctx context.Context, audioURL, transcriptURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audioURL, f.transcriptURL = audioURL, transcriptURL
	return "job-1", nil
}

func (f *fakeAligner) Job(ctx context.Context, jobID string) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := StatusInProgress
	if f.polls < len(f.statuses) {
		status = f.statuses[f.polls]
	}
	f.polls++
	return &Job{ID: jobID, Status: status, Failure: f.failure}, nil
}

func (f *fakeAligner) Transcript(ctx context.Context, jobID string) (*Transcript, error) {
	return f.result, nil
}

func newTestReconstructor(t *testing.T, a Aligner, timeout time.Duration) (*Reconstructor, string) {
	t.Helper()
	dir := t.TempDir()
	r := NewReconstructor(Options{
		Aligner:      a,
		Store:        storage.NewLocalStore(dir, "http://engine.test/staging"),
		PollInterval: 5 * time.Millisecond,
		Timeout:      timeout,
		Log:          zerolog.Nop(),
	})
	return r, dir
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("staging dir not cleaned up: %d entries", len(entries))
	}
}

func TestReconstructor_Align(t *testing.T) {
	fake := &fakeAligner{
		statuses: []string{StatusInProgress, StatusCompleted},
		result: &Transcript{Monologues: []Monologue{{Elements: []Element{
			{Type: "text", Value: "hi", Ts: sec("0"), EndTs: sec("0.5")},
			{Type: "text", Value: "there", Ts: sec("0.5"), EndTs: sec("1")},
			{Type: "text", Value: "you", Ts: sec("1.2"), EndTs: sec("1.5")},
			{Type: "text", Value: "ok", Ts: sec("1.5"), EndTs: sec("2")},
		}}}},
	}
	r, dir := newTestReconstructor(t, fake, time.Second)

	audio := filepath.Join(t.TempDir(), "depo.wav")
	os.WriteFile(audio, []byte("RIFF"), 0o644)

	turns, err := r.Align(context.Background(), []transcript.Turn{
		{Speaker: "A", Text: "hi there"},
		{Speaker: "B", Text: "you ok"},
	}, AudioRef{Path: audio})
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if len(turns) != 2 || turns[0].Speaker != "A" || turns[1].Speaker != "B" {
		t.Errorf("turns = %+v", turns)
	}
	if !strings.HasPrefix(fake.transcriptURL, "http://engine.test/staging/") ||
		!strings.HasSuffix(fake.transcriptURL, "/transcript.txt") {
		t.Errorf("transcript url = %q", fake.transcriptURL)
	}
	if !strings.HasSuffix(fake.audioURL, "/depo.wav") {
		t.Errorf("audio url = %q", fake.audioURL)
	}
	if fake.polls != 2 {
		t.Errorf("polls = %d, want 2", fake.polls)
	}
	assertEmptyDir(t, dir)
}

func TestReconstructor_JobFailed(t *testing.T) {
	fake := &fakeAligner{statuses: []string{StatusFailed}, failure: "bad audio"}
	r, dir := newTestReconstructor(t, fake, time.Second)

	_, err := r.Align(context.Background(), []transcript.Turn{{Speaker: "A", Text: "hello"}}, AudioRef{URL: "https://media/x.wav"})
	if !errors.Is(err, ErrAlignmentFailed) {
		t.Fatalf("err = %v, want ErrAlignmentFailed", err)
	}
	var ae *AlignmentError
	if !errors.As(err, &ae) || ae.JobID != "job-1" {
		t.Errorf("err = %#v, want *AlignmentError for job-1", err)
	}
	if !strings.Contains(err.Error(), "bad audio") {
		t.Errorf("err = %q, want failure reason", err)
	}
	if fake.audioURL != "https://media/x.wav" {
		t.Errorf("audio url = %q", fake.audioURL)
	}
	assertEmptyDir(t, dir)
}

func TestReconstructor_Timeout(t *testing.T) {
	r, dir := newTestReconstructor(t, &fakeAligner{}, 30*time.Millisecond)

	_, err := r.Align(context.Background(), []transcript.Turn{{Speaker: "A", Text: "hello"}}, AudioRef{URL: "https://media/x.wav"})
	if !errors.Is(err, ErrAlignmentTimeout) {
		t.Fatalf("err = %v, want ErrAlignmentTimeout", err)
	}
	assertEmptyDir(t, dir)
}

func TestReconstructor_CallerCancel(t *testing.T) {
	r, _ := newTestReconstructor(t, &fakeAligner{}, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := r.Align(ctx, []transcript.Turn{{Speaker: "A", Text: "hello"}}, AudioRef{URL: "https://media/x.wav"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAlignmentTimeout) {
		t.Error("caller cancellation reported as timeout")
	}
}

func TestReconstructor_NoText(t *testing.T) {
	r, _ := newTestReconstructor(t, &fakeAligner{}, time.Second)
	_, err := r.Align(context.Background(), []transcript.Turn{{Speaker: "A", Text: "-- ..."}}, AudioRef{URL: "x"})
	if !errors.Is(err, ErrNoAlignableText) {
		t.Errorf("err = %v, want ErrNoAlignableText", err)
	}
}

func TestRevAIClient(t *testing.T) {
	var submitted submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &submitted)
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"id":"abc","status":"in_progress"}`)
		case r.URL.Path == "/jobs/abc":
			io.WriteString(w, `{"id":"abc","status":"completed"}`)
		case r.URL.Path == "/jobs/abc/transcript":
			if r.Header.Get("Accept") != transcriptMediaType {
				w.WriteHeader(http.StatusNotAcceptable)
				return
			}
			io.WriteString(w, `{"monologues":[{"speaker":0,"elements":[`+
				`{"type":"text","value":"hi","ts":0.29,"end_ts":0.5,"confidence":0.9},`+
				`{"type":"punct","value":"."}]}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewRevAIClient("secret", srv.URL+"/", 600, 5*time.Second)
	ctx := context.Background()

	id, err := c.Submit(ctx, "https://a/audio.wav", "https://a/t.txt")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "abc" {
		t.Errorf("id = %q", id)
	}
	if submitted.SourceConfig.URL != "https://a/audio.wav" || submitted.SourceTranscriptConfig.URL != "https://a/t.txt" {
		t.Errorf("submitted = %+v", submitted)
	}

	job, err := c.Job(ctx, "abc")
	if err != nil || job.Status != StatusCompleted {
		t.Fatalf("Job = %+v, %v", job, err)
	}

	tr, err := c.Transcript(ctx, "abc")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	els := tr.Elements()
	if len(els) != 2 || els[0].Value != "hi" {
		t.Fatalf("elements = %+v", els)
	}
	if got := toMillis(*els[0].Ts); got != 290 {
		t.Errorf("ts ms = %v, want 290", got)
	}

	if _, err := c.Job(ctx, "missing"); err == nil {
		t.Error("expected error for unknown job")
	}
}
