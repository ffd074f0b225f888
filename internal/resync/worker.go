// Package resync runs transcript re-alignment jobs off the request path.
package resync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/depo-engine/internal/align"
	"github.com/snarg/depo-engine/internal/database"
	"github.com/snarg/depo-engine/internal/metrics"
	"github.com/snarg/depo-engine/internal/transcript"
)

var (
	// ErrAlignmentInFlight is returned when the transcript already has a
	// queued or running resync.
	ErrAlignmentInFlight = errors.New("alignment already in flight for transcript")
	ErrQueueFull         = errors.New("resync queue is full")
	ErrStopped           = errors.New("resync pool is stopped")
)

// Store is the persistence the pool needs.
type Store interface {
	GetTranscript(ctx context.Context, id int64) (*database.TranscriptAPI, error)
	ReplaceTurns(ctx context.Context, id int64, turns json.RawMessage, contentHash string) error
	InsertResyncJob(ctx context.Context, j *database.ResyncJob) error
	MarkResyncJobRunning(ctx context.Context, id string) error
	FinishResyncJob(ctx context.Context, id, status, errMsg string) error
}

// Aligner re-times turns against audio.
type Aligner interface {
	Align(ctx context.Context, turns []transcript.Turn, audio align.AudioRef) ([]transcript.Turn, error)
}

// Event is published on every job status change.
type Event struct {
	JobID        string `json:"job_id"`
	TranscriptID int64  `json:"transcript_id"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// EventPublishFunc is a callback for publishing job events.
type EventPublishFunc func(ev Event)

// Job is one queued alignment.
type Job struct {
	ID           string
	TranscriptID int64
	Audio        align.AudioRef
}

// QueueStats reports the current state of the resync queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	InFlight  int   `json:"in_flight"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Workers   int   `json:"workers"`
}

// PoolOptions configures the resync worker pool.
type PoolOptions struct {
	Store        Store
	Aligner      Aligner
	Pagination   transcript.Options
	Workers      int
	QueueSize    int
	JobTimeout   time.Duration
	PublishEvent EventPublishFunc
	Log          zerolog.Logger
}

// Pool manages resync workers. At most one job per transcript is queued or
// running at any time.
type Pool struct {
	jobs   chan Job
	opts   PoolOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight map[int64]string // transcript id → job id
	stopped  bool

	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a new resync worker pool.
func NewPool(opts PoolOptions) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 15 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:     make(chan Job, opts.QueueSize),
		opts:     opts,
		log:      opts.Log.With().Str("component", "resync").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[int64]string),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().Int("workers", p.opts.Workers).Int("queue_size", p.opts.QueueSize).Msg("resync worker pool started")
}

// Stop stops accepting jobs, lets workers drain the queue and waits.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	p.log.Info().
		Int64("completed", p.completed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("resync worker pool stopped")
}

// Submit records and enqueues a resync for a transcript.
func (p *Pool) Submit(ctx context.Context, transcriptID int64, audio align.AudioRef) (*database.ResyncJob, error) {
	if audio.URL == "" && audio.Path == "" {
		return nil, fmt.Errorf("audio url or path is required")
	}
	if _, err := p.opts.Store.GetTranscript(ctx, transcriptID); err != nil {
		return nil, err
	}

	job := Job{ID: uuid.New().String(), TranscriptID: transcriptID, Audio: audio}
	if err := p.reserve(job); err != nil {
		return nil, err
	}

	rec := &database.ResyncJob{
		ID:           job.ID,
		TranscriptID: transcriptID,
		Status:       database.JobQueued,
		AudioURL:     audio.URL,
		AudioPath:    audio.Path,
		CreatedAt:    time.Now(),
	}
	if err := p.opts.Store.InsertResyncJob(ctx, rec); err != nil {
		p.release(transcriptID)
		return nil, err
	}

	p.publish(Event{JobID: job.ID, TranscriptID: transcriptID, Status: database.JobQueued})

	if err := p.enqueue(job); err != nil {
		p.release(transcriptID)
		p.opts.Store.FinishResyncJob(ctx, job.ID, database.JobFailed, err.Error())
		p.publish(Event{JobID: job.ID, TranscriptID: transcriptID, Status: database.JobFailed, Error: err.Error()})
		return nil, err
	}
	return rec, nil
}

func (p *Pool) reserve(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if existing, ok := p.inFlight[job.TranscriptID]; ok {
		return fmt.Errorf("%w (job %s)", ErrAlignmentInFlight, existing)
	}
	p.inFlight[job.TranscriptID] = job.ID
	return nil
}

func (p *Pool) release(transcriptID int64) {
	p.mu.Lock()
	delete(p.inFlight, transcriptID)
	p.mu.Unlock()
}

// enqueue is non-blocking; the lock keeps it from racing Stop's close.
func (p *Pool) enqueue(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns current queue statistics.
func (p *Pool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(p.jobs),
		InFlight:  p.InFlight(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Workers:   p.opts.Workers,
	}
}

// QueueDepth returns the number of jobs waiting for a worker.
func (p *Pool) QueueDepth() int { return len(p.jobs) }

// InFlight returns the number of transcripts with a queued or running job.
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()

	for job := range p.jobs {
		err := p.processJob(log, job)
		p.release(job.TranscriptID)

		status := database.JobCompleted
		var errMsg string
		if err != nil {
			status = database.JobFailed
			errMsg = err.Error()
			p.failed.Add(1)
			log.Warn().Err(err).
				Str("job_id", job.ID).
				Int64("transcript_id", job.TranscriptID).
				Msg("resync failed")
		} else {
			p.completed.Add(1)
		}
		metrics.ResyncJobsTotal.WithLabelValues(status).Inc()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if ferr := p.opts.Store.FinishResyncJob(ctx, job.ID, status, errMsg); ferr != nil {
			log.Error().Err(ferr).Str("job_id", job.ID).Msg("failed to record job result")
		}
		cancel()

		p.publish(Event{JobID: job.ID, TranscriptID: job.TranscriptID, Status: status, Error: errMsg})
	}
}

// processJob aligns the stored turns and swaps them in. The stored
// transcript is left untouched on any error.
func (p *Pool) processJob(log zerolog.Logger, job Job) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.JobTimeout)
	defer cancel()

	if err := p.opts.Store.MarkResyncJobRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	p.publish(Event{JobID: job.ID, TranscriptID: job.TranscriptID, Status: database.JobRunning})

	row, err := p.opts.Store.GetTranscript(ctx, job.TranscriptID)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	var turns []transcript.Turn
	if err := json.Unmarshal(row.Turns, &turns); err != nil {
		return fmt.Errorf("decode turns: %w", err)
	}

	start := time.Now()
	aligned, err := p.opts.Aligner.Align(ctx, turns, job.Audio)
	metrics.AlignmentDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	opts := p.opts.Pagination
	opts.LinesPerPage = row.LinesPerPage
	hash, err := transcript.ContentHash(aligned, row.AudioDuration, opts)
	if err != nil {
		return err
	}
	data, err := json.Marshal(aligned)
	if err != nil {
		return fmt.Errorf("encode turns: %w", err)
	}
	if err := p.opts.Store.ReplaceTurns(ctx, job.TranscriptID, data, hash); err != nil {
		return fmt.Errorf("store turns: %w", err)
	}

	log.Info().
		Str("job_id", job.ID).
		Int64("transcript_id", job.TranscriptID).
		Int("turns_before", len(turns)).
		Int("turns_after", len(aligned)).
		Dur("elapsed", time.Since(start)).
		Msg("resync complete")
	return nil
}

func (p *Pool) publish(ev Event) {
	if p.opts.PublishEvent != nil {
		p.opts.PublishEvent(ev)
	}
}
