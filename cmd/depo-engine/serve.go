package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/depo-engine/internal/align"
	"github.com/snarg/depo-engine/internal/api"
	"github.com/snarg/depo-engine/internal/config"
	"github.com/snarg/depo-engine/internal/database"
	"github.com/snarg/depo-engine/internal/metrics"
	"github.com/snarg/depo-engine/internal/mqttclient"
	"github.com/snarg/depo-engine/internal/resync"
	"github.com/snarg/depo-engine/internal/storage"
	"github.com/snarg/depo-engine/internal/watcher"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveFlags config.Overrides

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service, hot folder and alignment workers",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.HTTPAddr, "listen", "", "HTTP listen address (env HTTP_ADDR)")
	serveCmd.Flags().StringVar(&serveFlags.DatabaseURL, "database-url", "", "PostgreSQL URL (env DATABASE_URL)")
	serveCmd.Flags().StringVar(&serveFlags.MQTTBrokerURL, "mqtt-broker", "", "MQTT broker URL (env MQTT_BROKER_URL)")
	serveCmd.Flags().StringVar(&serveFlags.WatchDir, "watch-dir", "", "hot folder for *.turns.json (env WATCH_DIR)")
	serveCmd.Flags().IntVar(&serveFlags.LinesPerPage, "lines-per-page", 0, "lines per page (env LINES_PER_PAGE)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	overrides := serveFlags
	overrides.EnvFile = envFile
	overrides.LogLevel = logLevel
	cfg, err := config.Load(overrides)
	if err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel, false)
	log.Info().Str("version", version).Msg("depo-engine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pagination := paginationOptions(cfg)
	opts := api.ServerOptions{
		Config:     cfg,
		Pagination: pagination,
		Version:    version,
		StartTime:  startTime,
		Log:        log,
	}

	// Database (optional)
	var db *database.DB
	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = openDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()
		dbPool = db.Pool
		opts.Store = db
		opts.Health.DB = db
	} else {
		log.Warn().Msg("DATABASE_URL not set, transcript storage and resync disabled")
	}

	// MQTT (optional)
	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mqtt, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Log:         log,
		})
		if err != nil {
			return err
		}
		defer mqtt.Close()
		opts.Health.MQTT = mqtt
	}

	// Alignment workers (need both the store and an aligner)
	var pool *resync.Pool
	switch {
	case db == nil:
	case !cfg.AlignmentEnabled():
		log.Info().Msg("REVAI_API_KEY not set, resync disabled")
	default:
		staging, pruner, err := storage.New(cfg, log)
		if err != nil {
			return err
		}
		if pruner != nil {
			pruner.Start()
			defer pruner.Stop()
		}
		if staging.Type() == "local" && cfg.StagingPublicURL == "" {
			log.Warn().Msg("STAGING_PUBLIC_URL not set, only audio_url resyncs will reach the aligner")
		}

		reconstructor := align.NewReconstructor(align.Options{
			Aligner:      align.NewRevAIClient(cfg.RevAIAPIKey, cfg.RevAIBaseURL, cfg.AlignRatePerMin, 30*time.Second),
			Store:        staging,
			PollInterval: cfg.AlignPollInterval,
			Timeout:      cfg.AlignTimeout,
			Log:          log,
		})
		pool = resync.NewPool(resync.PoolOptions{
			Store:        db,
			Aligner:      reconstructor,
			Pagination:   pagination,
			Workers:      cfg.ResyncWorkers,
			QueueSize:    cfg.ResyncQueueSize,
			JobTimeout:   cfg.AlignTimeout + 5*time.Minute,
			PublishEvent: eventPublisher(mqtt, log),
			Log:          log,
		})
		pool.Start()
		defer stopPool(pool, log)
		opts.Queue = pool
	}

	var queueStats metrics.QueueStats
	if pool != nil {
		queueStats = pool
	}
	prometheus.MustRegister(metrics.NewCollector(dbPool, queueStats))

	// Hot folder (optional)
	if cfg.WatchDir != "" {
		fw := watcher.New(cfg.WatchDir, pagination, log)
		if err := fw.Start(ctx); err != nil {
			return err
		}
		defer fw.Stop()
		opts.Health.Watcher = fw
	}

	srv := api.NewServer(opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if db != nil {
		g.Go(func() error {
			purgeJobs(gctx, db, cfg.ResyncJobRetention, log)
			return nil
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("http server error")
	}
	log.Info().Msg("depo-engine stopped")
	return err
}

func openDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*database.DB, error) {
	db, err := database.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if n, err := db.FailStaleResyncJobs(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to reset stale resync jobs")
	} else if n > 0 {
		log.Warn().Int64("jobs", n).Msg("marked resync jobs interrupted by restart as failed")
	}
	return db, nil
}

// eventPublisher forwards job events to MQTT as <prefix>/resync/<job_id>.
func eventPublisher(mqtt *mqttclient.Client, log zerolog.Logger) resync.EventPublishFunc {
	if mqtt == nil {
		return nil
	}
	return func(ev resync.Event) {
		if err := mqtt.Publish("resync/"+ev.JobID, ev); err != nil {
			log.Warn().Err(err).Str("job_id", ev.JobID).Str("status", ev.Status).Msg("failed to publish resync event")
		}
	}
}

// stopPool drains the workers, giving up after the shutdown timeout. Jobs
// still running are marked failed on the next start.
func stopPool(pool *resync.Pool, log zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn().Int("in_flight", pool.InFlight()).Msg("resync workers still busy at shutdown, abandoning")
	}
}

// purgeJobs drops finished job records past retention, hourly.
func purgeJobs(ctx context.Context, db *database.DB, retention time.Duration, log zerolog.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := db.PurgeFinishedResyncJobs(ctx, retention)
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("failed to purge finished resync jobs")
		} else if n > 0 {
			log.Info().Int64("deleted", n).Msg("purged finished resync jobs")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
