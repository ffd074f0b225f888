package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/depo-engine/internal/config"
)

// ErrNoPublicURL is returned by stores that cannot hand out URLs reachable
// by the alignment service.
var ErrNoPublicURL = errors.New("staging store has no public URL")

// StagingStore holds short-lived objects that an external service fetches by URL.
type StagingStore interface {
	// Put stores body under key. key format: {job}/{name}
	Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) error

	// URL returns a URL the alignment service can GET the object from.
	URL(ctx context.Context, key string) (string, error)

	// Open returns a reader for the object.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Type returns "local" or "s3".
	Type() string
}

// New creates a StagingStore based on config. The local store also returns a
// pruner that the caller must Start/Stop; S3 buckets are expected to expire
// orphans with a lifecycle rule.
// Returns an error if S3 is configured but unreachable.
func New(cfg *config.Config, log zerolog.Logger) (StagingStore, BackgroundService, error) {
	if !cfg.S3.Enabled() {
		local := NewLocalStore(cfg.StagingDir, cfg.StagingPublicURL)
		return local, NewStagingPruner(cfg.StagingDir, cfg.StagingTTL, log), nil
	}

	s3store, err := NewS3Store(cfg.S3, log)
	if err != nil {
		return nil, nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.S3.Bucket, cfg.S3.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.S3.Bucket).Str("endpoint", cfg.S3.Endpoint).Msg("S3 connection verified")

	return s3store, nil, nil
}

// BackgroundService is a stoppable background goroutine.
type BackgroundService interface {
	Start()
	Stop()
}
