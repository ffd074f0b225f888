package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/snarg/depo-engine/internal/config"
	"github.com/snarg/depo-engine/internal/metrics"
	"github.com/snarg/depo-engine/internal/oncue"
	"github.com/snarg/depo-engine/internal/transcript"
	"github.com/spf13/cobra"
)

var (
	paginateFormat       string
	paginateOutput       string
	paginateLinesPerPage int
	paginateNoMin        bool
)

var paginateCmd = &cobra.Command{
	Use:   "paginate <document.json>",
	Short: "Paginate a turns document and print lines or OnCue XML",
	Long: `Reads a turns document ({"turns": [...], "audio_duration": ..., "title_data": {...}})
and writes either the paginated lines as JSON or the OnCue XML export.
Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runPaginate,
}

func init() {
	paginateCmd.Flags().StringVarP(&paginateFormat, "format", "f", "xml", "output format: json or xml")
	paginateCmd.Flags().StringVarP(&paginateOutput, "output", "o", "", "output file (default: stdout)")
	paginateCmd.Flags().IntVar(&paginateLinesPerPage, "lines-per-page", 0, "override lines per page")
	paginateCmd.Flags().BoolVar(&paginateNoMin, "no-min-duration", false, "skip minimum line duration redistribution")
	rootCmd.AddCommand(paginateCmd)
}

func runPaginate(cmd *cobra.Command, args []string) error {
	if paginateFormat != "json" && paginateFormat != "xml" {
		return fmt.Errorf("unknown format %q (want json or xml)", paginateFormat)
	}
	cfg, err := config.Load(config.Overrides{EnvFile: envFile, LogLevel: logLevel, LinesPerPage: paginateLinesPerPage})
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, true)

	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	var doc oncue.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	if paginateLinesPerPage != 0 {
		doc.LinesPerPage = paginateLinesPerPage
	}
	if paginateNoMin {
		off := false
		doc.EnforceMinDuration = &off
	}
	if doc.Title.MediaID == "" && args[0] != "-" {
		doc.Title.MediaID = trimInputExt(filepath.Base(args[0]))
	}

	rendered, err := oncue.Render(&doc, paginationOptions(cfg))
	if err != nil {
		return err
	}
	metrics.ObservePagination("cli", len(rendered.Pagination.Lines), rendered.TimestampErrors())

	log.Info().
		Int("lines", len(rendered.Pagination.Lines)).
		Int("last_pgln", rendered.Pagination.LastPGLN).
		Int("timestamp_errors", rendered.TimestampErrors()).
		Str("content_hash", rendered.ContentHash).
		Msg("paginated")

	var out []byte
	if paginateFormat == "json" {
		out, err = json.MarshalIndent(struct {
			Lines       []transcript.LineEntry `json:"lines"`
			LastPGLN    int                    `json:"last_pgln"`
			ContentHash string                 `json:"content_hash"`
		}{rendered.Pagination.Lines, rendered.Pagination.LastPGLN, rendered.ContentHash}, "", "  ")
		if err != nil {
			return err
		}
		out = append(out, '\n')
	} else {
		out = rendered.XML
	}
	return writeOutput(cmd, paginateOutput, out)
}

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// writeOutput writes to path, or the command's stdout when path is empty.
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func trimInputExt(name string) string {
	for _, ext := range []string{".turns.json", ".json"} {
		if base, ok := strings.CutSuffix(name, ext); ok && base != "" {
			return base
		}
	}
	return name
}
