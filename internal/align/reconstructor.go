package align

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/depo-engine/internal/storage"
	"github.com/snarg/depo-engine/internal/transcript"
)

const cleanupTimeout = 10 * time.Second

// AudioRef points at the audio to align against. URL wins when both are set;
// a local Path is staged through the store first.
type AudioRef struct {
	URL  string `json:"audio_url,omitempty"`
	Path string `json:"audio_path,omitempty"`
}

// Options configures a Reconstructor.
type Options struct {
	Aligner      Aligner
	Store        storage.StagingStore
	PollInterval time.Duration
	Timeout      time.Duration
	Log          zerolog.Logger
}

// Reconstructor runs the full alignment round trip for a transcript.
type Reconstructor struct {
	aligner      Aligner
	store        storage.StagingStore
	pollInterval time.Duration
	timeout      time.Duration
	log          zerolog.Logger
}

// NewReconstructor creates a reconstructor. Zero durations fall back to a 3s
// poll interval and a 10m timeout.
func NewReconstructor(opts Options) *Reconstructor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	return &Reconstructor{
		aligner:      opts.Aligner,
		store:        opts.Store,
		pollInterval: opts.PollInterval,
		timeout:      opts.Timeout,
		log:          opts.Log.With().Str("component", "aligner").Logger(),
	}
}

// Align submits the turns' text with the audio, waits for the job and
// returns the turns rebuilt from the aligned words. Staged objects are
// removed before returning, whatever the outcome.
func (r *Reconstructor) Align(ctx context.Context, turns []transcript.Turn, audio AudioRef) ([]transcript.Turn, error) {
	tokens, speakers := Flatten(turns)
	if len(tokens) == 0 {
		return nil, &AlignmentError{Op: "prepare", Err: ErrNoAlignableText}
	}

	stageID := uuid.New().String()
	var staged []string
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		for _, key := range staged {
			if err := r.store.Delete(cctx, key); err != nil {
				r.log.Warn().Err(err).Str("key", key).Msg("failed to remove staged object")
			}
		}
	}()

	transcriptKey := stageID + "/transcript.txt"
	if err := r.store.Put(ctx, transcriptKey, strings.NewReader(strings.Join(tokens, " ")), "text/plain"); err != nil {
		return nil, &AlignmentError{Op: "stage", Err: err}
	}
	staged = append(staged, transcriptKey)
	transcriptURL, err := r.store.URL(ctx, transcriptKey)
	if err != nil {
		return nil, &AlignmentError{Op: "stage", Err: err}
	}

	audioURL := audio.URL
	if audioURL == "" {
		if audio.Path == "" {
			return nil, &AlignmentError{Op: "stage", Err: errors.New("audio url or path is required")}
		}
		key, err := r.stageAudio(ctx, stageID, audio.Path)
		if key != "" {
			staged = append(staged, key)
		}
		if err != nil {
			return nil, &AlignmentError{Op: "stage", Err: err}
		}
		if audioURL, err = r.store.URL(ctx, key); err != nil {
			return nil, &AlignmentError{Op: "stage", Err: err}
		}
	}

	jobID, err := r.aligner.Submit(ctx, audioURL, transcriptURL)
	if err != nil {
		return nil, &AlignmentError{Op: "submit", Err: err}
	}
	r.log.Info().Str("job_id", jobID).Int("words", len(tokens)).Msg("alignment job submitted")

	result, err := r.wait(ctx, jobID)
	if err != nil {
		return nil, err
	}

	elements := result.Elements()
	out := Reconstruct(elements, speakers)
	r.log.Info().
		Str("job_id", jobID).
		Int("submitted", len(tokens)).
		Int("aligned", len(elements)).
		Int("turns", len(out)).
		Msg("alignment complete")
	return out, nil
}

func (r *Reconstructor) stageAudio(ctx context.Context, stageID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	key := stageID + "/" + filepath.Base(path)
	if err := r.store.Put(ctx, key, f, "application/octet-stream"); err != nil {
		return "", err
	}
	return key, nil
}

// wait polls the job until it completes, fails or the timeout elapses.
func (r *Reconstructor) wait(ctx context.Context, jobID string) (*Transcript, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		job, err := r.aligner.Job(waitCtx, jobID)
		if err != nil {
			return nil, r.waitErr(ctx, waitCtx, jobID, "poll", err)
		}

		switch job.Status {
		case StatusCompleted:
			t, err := r.aligner.Transcript(waitCtx, jobID)
			if err != nil {
				return nil, r.waitErr(ctx, waitCtx, jobID, "fetch", err)
			}
			return t, nil
		case StatusFailed:
			failure := job.Failure
			if failure == "" {
				failure = "unknown error"
			}
			return nil, &AlignmentError{
				Op:    "poll",
				JobID: jobID,
				Err:   fmt.Errorf("%w: %s - %s", ErrAlignmentFailed, failure, job.FailureDetail),
			}
		}

		r.log.Debug().Str("job_id", jobID).Str("status", job.Status).Msg("alignment pending")

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			return nil, r.waitErr(ctx, waitCtx, jobID, "poll", waitCtx.Err())
		}
	}
}

// waitErr reports ErrAlignmentTimeout when our own deadline fired rather than
// the caller's context.
func (r *Reconstructor) waitErr(parent, waitCtx context.Context, jobID, op string, err error) error {
	if parent.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrAlignmentTimeout, r.timeout)
	}
	return &AlignmentError{Op: op, JobID: jobID, Err: err}
}
