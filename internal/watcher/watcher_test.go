package watcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/depo-engine/internal/transcript"
)

const sampleDoc = `{
  "turns": [
    {"speaker": "counsel", "text": "State your name for the record"},
    {"speaker": "witness", "text": "Jane Doe"}
  ],
  "audio_duration": 12,
  "title_data": {"CASE_NAME": "Smith v. Jones"}
}`

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestOutputPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/a/depo.turns.json", "/a/depo.xml"},
		{"/a/DEPO.TURNS.JSON", "/a/DEPO.xml"},
		{"/a/other.json", "/a/other.json.xml"},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.in); got != tt.want {
			t.Errorf("OutputPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsInput(t *testing.T) {
	if !isInput("/x/day1.turns.json") || !isInput("Day1.Turns.JSON") {
		t.Error("turn documents not recognised")
	}
	if isInput("/x/day1.json") || isInput("/x/day1.xml") {
		t.Error("unrelated files recognised as input")
	}
}

func TestProcess_WritesExport(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "day1.turns.json")
	writeFile(t, in, sampleDoc)

	fw := New(dir, transcript.DefaultOptions(), zerolog.Nop())
	out, err := fw.Process(in, false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out != filepath.Join(dir, "day1.xml") {
		t.Errorf("out = %q", out)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("<onCue ")) {
		t.Errorf("unexpected export: %s", data)
	}
	if !bytes.Contains(data, []byte(`mediaId="day1"`)) {
		t.Errorf("media id not derived from file name: %s", data)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("dir has %d entries, want 2", len(entries))
	}
}

func TestProcess_SkipsUpToDate(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "day1.turns.json")
	writeFile(t, in, sampleDoc)

	fw := New(dir, transcript.DefaultOptions(), zerolog.Nop())
	if _, err := fw.Process(in, true); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	if _, err := fw.Process(in, true); err != errUpToDate {
		t.Errorf("second Process err = %v, want errUpToDate", err)
	}

	past := time.Now().Add(-time.Hour)
	os.Chtimes(OutputPath(in), past, past)
	if _, err := fw.Process(in, true); err != nil {
		t.Errorf("stale export not rebuilt: %v", err)
	}
}

func TestProcess_InvalidDocument(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.turns.json")
	writeFile(t, bad, "{not json")
	empty := filepath.Join(dir, "empty.turns.json")
	writeFile(t, empty, `{"turns": [], "audio_duration": 3}`)

	fw := New(dir, transcript.DefaultOptions(), zerolog.Nop())
	if _, err := fw.Process(bad, false); err == nil {
		t.Error("expected parse error")
	}
	if _, err := fw.Process(empty, false); err == nil {
		t.Error("expected error for a document without turns")
	}
	if _, err := os.Stat(OutputPath(empty)); !os.IsNotExist(err) {
		t.Error("export written for a failed document")
	}
}

func TestFileWatcher_BackfillAndWatch(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.turns.json")
	writeFile(t, existing, sampleDoc)

	fw := New(dir, transcript.DefaultOptions(), zerolog.Nop())
	if err := fw.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	waitFor(t, func() bool { return fw.Status().Status == "watching" })
	if _, err := os.Stat(OutputPath(existing)); err != nil {
		t.Fatalf("backfill did not export: %v", err)
	}

	sub := filepath.Join(dir, "week2")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give fsnotify a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	dropped := filepath.Join(sub, "dropped.turns.json")
	writeFile(t, dropped, sampleDoc)

	waitFor(t, func() bool { return fw.Status().FilesProcessed == 2 })
	if _, err := os.Stat(OutputPath(dropped)); err != nil {
		t.Fatalf("dropped file not exported: %v", err)
	}

	st := fw.Status()
	if st.FilesProcessed != 2 || st.FilesFailed != 0 {
		t.Errorf("status = %+v", st)
	}
	if st.WatchDir != dir {
		t.Errorf("watch dir = %q", st.WatchDir)
	}
}
