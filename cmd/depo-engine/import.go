package main

import (
	"encoding/json"
	"fmt"

	"github.com/snarg/depo-engine/internal/oncue"
	"github.com/snarg/depo-engine/internal/transcript"
	"github.com/spf13/cobra"
)

var (
	importOutput string
	importTurns  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file.xml>",
	Short: "Read an OnCue XML export back into editable lines",
	Long: `Parses an OnCue XML export and prints its lines, title data and duration
as JSON. With --turns the lines are regrouped into a turns document that the
paginate command and the hot folder accept.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importOutput, "output", "o", "", "output file (default: stdout)")
	importCmd.Flags().BoolVar(&importTurns, "turns", false, "emit a turns document instead of lines")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	imp, err := oncue.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	var v any = imp
	if importTurns {
		lines, duration := transcript.NormalizeLines(imp.Lines, imp.AudioDuration)
		v = oncue.Document{
			Turns:         transcript.TurnsFromLines(lines),
			AudioDuration: duration,
			Title:         imp.Title,
		}
	}

	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(cmd, importOutput, append(out, '\n'))
}
