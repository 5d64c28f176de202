package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"iotlab-radio/internal/export"
	"iotlab-radio/internal/logging"
	"iotlab-radio/internal/parser"
)

var (
	parseLogPath   string
	parsePrintOnly bool
	parseNonZero   bool
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Reshape a saved run into recv, send and error tables",
	Long: "parse reads the node logs of a run directory and writes recv-logs.csv, " +
		"send-logs.csv and error-logs.csv next to them. With --print-only the tables " +
		"are printed as JSON lines instead. GREPTIMEDB_ENDPOINT also exports them to GreptimeDB.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := logging.FromContext(ctx)

		tables, err := parser.Parse(ctx, parseLogPath)
		if err != nil {
			return err
		}
		w, err := newTableWriters(writerOptions{
			logPath:   parseLogPath,
			printOnly: parsePrintOnly,
			nonZero:   parseNonZero,
			runID:     tables.RunID,
			captured:  tables.Captured,
			stdout:    cmd.OutOrStdout(),
		}, logger)
		if err != nil {
			return err
		}
		if err := export.WriteAll(ctx, w, tables.All()); err != nil {
			w.Close()
			return fmt.Errorf("write tables: %w", err)
		}
		if err := w.Close(); err != nil {
			return err
		}
		logger.Info("radio logs parsed",
			"dir", parseLogPath,
			"files", tables.Stats.Files,
			"missing", tables.Stats.Missing,
			"records", tables.Stats.Records,
			"out_of_range", tables.Stats.OutOfRange,
			"unknown_link", tables.Stats.UnknownLink)
		return nil
	},
}

func init() {
	fs := parseCmd.Flags()
	fs.StringVar(&parseLogPath, "log-path", "", "Run directory holding config.json")
	fs.BoolVar(&parsePrintOnly, "print-only", false, "Print tables as JSON lines instead of writing files")
	fs.BoolVar(&parseNonZero, "nonzero", false, "With --print-only, skip rows whose values are all zero")
	_ = parseCmd.MarkFlagRequired("log-path")
}
