package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StagingPruner removes staged files left behind by a crash between Put and
// Delete. Alignment jobs clean up after themselves; this only catches orphans.
type StagingPruner struct {
	dir      string
	ttl      time.Duration
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewStagingPruner creates a pruner that evicts files older than ttl.
func NewStagingPruner(dir string, ttl time.Duration, log zerolog.Logger) *StagingPruner {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return &StagingPruner{
		dir:      dir,
		ttl:      ttl,
		interval: interval,
		log:      log.With().Str("component", "staging-pruner").Logger(),
		stop:     make(chan struct{}),
	}
}

func (p *StagingPruner) Start() {
	go p.loop()
}

func (p *StagingPruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *StagingPruner) loop() {
	// Run once on startup to clear anything left from the last run
	p.prune(time.Now())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			p.prune(now)
		case <-p.stop:
			return
		}
	}
}

func (p *StagingPruner) prune(now time.Time) {
	if p.ttl <= 0 {
		return
	}

	cutoff := now.Add(-p.ttl)
	var prunedCount int
	var prunedBytes int64

	filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				prunedCount++
				prunedBytes += info.Size()
			}
		}
		return nil
	})

	p.removeEmptyDirs()

	if prunedCount > 0 {
		p.log.Info().
			Int("pruned", prunedCount).
			Str("freed", humanizeBytes(prunedBytes)).
			Msg("staging prune complete")
	}
}

func (p *StagingPruner) removeEmptyDirs() {
	entries, _ := os.ReadDir(p.dir)
	for _, jobDir := range entries {
		if !jobDir.IsDir() {
			continue
		}
		jobPath := filepath.Join(p.dir, jobDir.Name())
		remaining, _ := os.ReadDir(jobPath)
		if len(remaining) == 0 {
			os.Remove(jobPath)
		}
	}
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
