package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken      string   `env:"AUTH_TOKEN"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:","`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`

	// DatabaseURL is optional; without it transcripts and resync jobs are disabled.
	DatabaseURL string `env:"DATABASE_URL"`

	LinesPerPage    int     `env:"LINES_PER_PAGE" envDefault:"25"`
	MinLineDuration float64 `env:"MIN_LINE_DURATION" envDefault:"1.25"`

	RevAIAPIKey       string        `env:"REVAI_API_KEY"`
	RevAIBaseURL      string        `env:"REVAI_BASE_URL" envDefault:"https://api.rev.ai/alignment/v1"`
	AlignPollInterval time.Duration `env:"ALIGN_POLL_INTERVAL" envDefault:"3s"`
	AlignTimeout      time.Duration `env:"ALIGN_TIMEOUT" envDefault:"10m"`
	AlignRatePerMin   int           `env:"ALIGN_RATE_PER_MIN" envDefault:"60"`

	ResyncWorkers      int           `env:"RESYNC_WORKERS" envDefault:"2"`
	ResyncQueueSize    int           `env:"RESYNC_QUEUE_SIZE" envDefault:"32"`
	ResyncJobRetention time.Duration `env:"RESYNC_JOB_RETENTION" envDefault:"720h"`

	StagingDir       string        `env:"STAGING_DIR" envDefault:"./staging"`
	StagingPublicURL string        `env:"STAGING_PUBLIC_URL"`
	StagingTTL       time.Duration `env:"STAGING_TTL" envDefault:"1h"`
	S3               S3Config      `envPrefix:"S3_"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"depo-engine"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"depo-engine"`

	WatchDir string `env:"WATCH_DIR"`
	// AudioDir is the root that resync requests may name audio files under.
	AudioDir string `env:"AUDIO_DIR"`
}

// S3Config configures the S3-compatible staging bucket used to hand
// transcripts and audio to the alignment service.
type S3Config struct {
	Bucket        string        `env:"BUCKET"`
	Endpoint      string        `env:"ENDPOINT"`
	Region        string        `env:"REGION" envDefault:"us-east-1"`
	AccessKey     string        `env:"ACCESS_KEY"`
	SecretKey     string        `env:"SECRET_KEY"`
	Prefix        string        `env:"PREFIX"`
	PresignExpiry time.Duration `env:"PRESIGN_EXPIRY" envDefault:"15m"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// AlignmentEnabled reports whether the alignment service is configured.
func (c *Config) AlignmentEnabled() bool { return c.RevAIAPIKey != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	DatabaseURL   string
	MQTTBrokerURL string
	WatchDir      string
	LinesPerPage  int
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.WatchDir != "" {
		cfg.WatchDir = overrides.WatchDir
	}
	if overrides.LinesPerPage != 0 {
		cfg.LinesPerPage = overrides.LinesPerPage
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.LinesPerPage < 1 || c.LinesPerPage > 99 {
		return fmt.Errorf("LINES_PER_PAGE must be between 1 and 99, got %d", c.LinesPerPage)
	}
	if c.MinLineDuration < 0 {
		return fmt.Errorf("MIN_LINE_DURATION must be >= 0, got %g", c.MinLineDuration)
	}
	if c.ResyncWorkers < 1 {
		return fmt.Errorf("RESYNC_WORKERS must be >= 1, got %d", c.ResyncWorkers)
	}
	if c.ResyncQueueSize < 1 {
		return fmt.Errorf("RESYNC_QUEUE_SIZE must be >= 1, got %d", c.ResyncQueueSize)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive, got %g/%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.AlignRatePerMin < 1 {
		return fmt.Errorf("ALIGN_RATE_PER_MIN must be >= 1, got %d", c.AlignRatePerMin)
	}
	return nil
}
