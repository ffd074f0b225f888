package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/depo-engine/internal/config"
	"github.com/snarg/depo-engine/internal/metrics"
	"github.com/snarg/depo-engine/internal/transcript"
)

// ServerOptions wires the HTTP server. Store, Queue and the Health fields
// are optional; their routes and checks are dropped when nil.
type ServerOptions struct {
	Config     *config.Config
	Pagination transcript.Options
	Store      TranscriptStore
	Queue      ResyncQueue
	Health     HealthDeps
	Version    string
	StartTime  time.Time
	Log        zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORSWithOrigins(cfg.CORSOrigins))
	r.Use(metrics.InstrumentHandler)

	// No auth: probes, scrapers and the aligner fetching staged files.
	health := opts.Health
	health.Queue = opts.Queue
	r.Get("/api/v1/health", NewHealthHandler(health, opts.Version, opts.StartTime).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.StagingPublicURL != "" && !cfg.S3.Enabled() {
		r.Handle("/staging/*", stagingFiles(cfg.StagingDir))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

		docs := NewDocumentHandler(opts.Pagination)
		r.Post("/paginate", docs.Paginate)
		r.Post("/export/oncue", docs.ExportOnCue)
		r.Post("/import/oncue", docs.ImportOnCue)

		if opts.Store != nil {
			NewTranscriptHandler(opts.Store, opts.Queue, opts.Pagination, cfg.AudioDir).Routes(r)
		}
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log.With().Str("component", "http").Logger(),
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}

// stagingFiles serves staged objects by key without directory listings.
func stagingFiles(dir string) http.Handler {
	fs := http.StripPrefix("/staging/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
