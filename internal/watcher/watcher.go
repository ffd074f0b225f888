// Package watcher turns a directory into a hot folder: every
// *.turns.json dropped into it gets an OnCue export written alongside.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/snarg/depo-engine/internal/metrics"
	"github.com/snarg/depo-engine/internal/oncue"
	"github.com/snarg/depo-engine/internal/transcript"
)

// InputSuffix marks files the watcher picks up.
const InputSuffix = ".turns.json"

const debounce = 500 * time.Millisecond

// errUpToDate means the export is already newer than its input.
var errUpToDate = errors.New("export is up to date")

// Status is the watcher's health snapshot.
type Status struct {
	Status         string `json:"status"`
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesSkipped   int64  `json:"files_skipped"`
	FilesFailed    int64  `json:"files_failed"`
}

// FileWatcher monitors a directory tree for turn documents and renders each
// one to <name>.xml in the same directory.
type FileWatcher struct {
	dir  string
	opts transcript.Options
	log  zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
	filesSkipped   atomic.Int64
	filesFailed    atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// New creates a watcher for dir. opts supplies the pagination defaults a
// document does not override.
func New(dir string, opts transcript.Options, log zerolog.Logger) *FileWatcher {
	fw := &FileWatcher{
		dir:            dir,
		opts:           opts,
		log:            log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
		done:           make(chan struct{}),
	}
	fw.status.Store("starting")
	return fw
}

// Start adds every existing directory to fsnotify, begins watching and
// renders any documents already present in the background.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(fw.dir, 0o755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w

	dirCount := 0
	err = filepath.WalkDir(fw.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			fw.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				fw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		w.Close()
		fw.watcher = nil
		return err
	}

	fw.ctx, fw.cancel = context.WithCancel(ctx)

	fw.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", fw.dir).
		Msg("file watcher initialized")

	go fw.watchLoop()
	go fw.backfill()
	return nil
}

// Stop closes the fsnotify watcher and drops pending debounced work.
func (fw *FileWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
		<-fw.done
	}

	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		t.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()

	fw.log.Info().
		Int64("files_processed", fw.filesProcessed.Load()).
		Int64("files_skipped", fw.filesSkipped.Load()).
		Int64("files_failed", fw.filesFailed.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FileWatcher) Status() *Status {
	s, _ := fw.status.Load().(string)
	return &Status{
		Status:         s,
		WatchDir:       fw.dir,
		FilesProcessed: fw.filesProcessed.Load(),
		FilesSkipped:   fw.filesSkipped.Load(),
		FilesFailed:    fw.filesFailed.Load(),
	}
}

func (fw *FileWatcher) watchLoop() {
	defer close(fw.done)
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := fw.watcher.Add(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					fw.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !isInput(event.Name) {
				continue
			}
			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess waits for writes to a file to settle before reading it.
func (fw *FileWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(debounce)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(debounce, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		if fw.ctx.Err() != nil {
			return
		}
		fw.handle(path, false)
	})
}

// handle renders one file and updates the counters.
func (fw *FileWatcher) handle(path string, skipUpToDate bool) {
	out, err := fw.Process(path, skipUpToDate)
	switch {
	case errors.Is(err, errUpToDate):
		fw.filesSkipped.Add(1)
	case err != nil:
		fw.filesFailed.Add(1)
		fw.log.Warn().Err(err).Str("path", path).Msg("failed to render transcript")
	default:
		fw.filesProcessed.Add(1)
		fw.log.Info().Str("path", path).Str("output", out).Msg("transcript exported")
	}
}

// Process renders the document at path and writes the export next to it,
// returning the output path. With skipUpToDate set, an export at least as
// new as its input is left alone.
func (fw *FileWatcher) Process(path string, skipUpToDate bool) (string, error) {
	out := OutputPath(path)

	in, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if skipUpToDate {
		if st, err := os.Stat(out); err == nil && !st.ModTime().Before(in.ModTime()) {
			return out, errUpToDate
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc oncue.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if doc.Title.FileName == "" && doc.Title.MediaID == "" {
		doc.Title.MediaID = strings.TrimSuffix(filepath.Base(OutputPath(path)), ".xml")
	}

	r, err := oncue.Render(&doc, fw.opts)
	if err != nil {
		return "", err
	}
	metrics.ObservePagination("watcher", len(r.Pagination.Lines), r.TimestampErrors())

	if err := writeAtomic(out, r.XML); err != nil {
		return "", err
	}
	metrics.ExportsTotal.WithLabelValues("watcher").Inc()
	return out, nil
}

// backfill renders documents that were dropped while the service was down.
func (fw *FileWatcher) backfill() {
	fw.status.Store("backfilling")
	start := time.Now()

	var files []string
	_ = filepath.WalkDir(fw.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if isInput(path) {
			files = append(files, path)
		}
		return nil
	})

	for _, f := range files {
		if fw.ctx.Err() != nil {
			fw.log.Info().Msg("backfill interrupted by shutdown")
			return
		}
		fw.handle(f, true)
	}

	if fw.ctx.Err() == nil {
		fw.status.Store("watching")
	}
	fw.log.Info().
		Int("files", len(files)).
		Dur("elapsed", time.Since(start)).
		Msg("backfill complete")
}

// OutputPath maps foo.turns.json to foo.xml.
func OutputPath(input string) string {
	if isInput(input) {
		input = input[:len(input)-len(InputSuffix)]
	}
	return input + ".xml"
}

func isInput(path string) bool {
	return strings.HasSuffix(strings.ToLower(filepath.Base(path)), InputSuffix)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
