package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/depo-engine/internal/config"
	"github.com/snarg/depo-engine/internal/transcript"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "depo-engine",
	Short: "Paginate, time and export deposition transcripts",
	Long: `depo-engine lays speaker turns out as fixed-width, page/line addressed
transcript lines, times every line against word-level timestamps and writes
OnCue XML. It can run as an HTTP service with a hot folder and alignment
workers, or one-shot from the command line.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to .env file (default: .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		early := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
		early.Error().Err(err).Msg("depo-engine failed")
		os.Exit(1)
	}
}

// newLogger builds the process logger. Console output suits the one-shot
// commands; the service logs JSON.
func newLogger(level string, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if console {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger().Level(lvl)
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// paginationOptions maps the service config onto engine options.
func paginationOptions(cfg *config.Config) transcript.Options {
	opts := transcript.DefaultOptions()
	opts.LinesPerPage = cfg.LinesPerPage
	opts.MinLineDuration = cfg.MinLineDuration
	return opts
}
