package main

import (
	"io"
	"log/slog"
	"os"
	"time"

	"iotlab-radio/internal/export"
)

// writerOptions select where parsed tables go.
type writerOptions struct {
	logPath   string
	printOnly bool
	nonZero   bool
	runID     string
	captured  time.Time
	stdout    io.Writer
}

// newTableWriters builds the writers for one parse: CSV files in the run
// directory, JSON lines on stdout with --print-only, and GreptimeDB when
// GREPTIMEDB_ENDPOINT is set.
func newTableWriters(opts writerOptions, logger *slog.Logger) (export.TableWriter, error) {
	var writers []export.TableWriter
	if opts.printOnly {
		jw := export.NewJSONWriter(opts.stdout)
		jw.NonZero = opts.nonZero
		writers = append(writers, jw)
	} else {
		cw, err := export.NewCSVWriter(opts.logPath)
		if err != nil {
			return nil, err
		}
		writers = append(writers, cw)

		if endpoint := os.Getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" {
			database := os.Getenv("GREPTIMEDB_DATABASE")
			if database == "" {
				database = "public"
			}
			gw, err := export.NewGreptimeDBWriter(endpoint, database, opts.runID, opts.captured, logger)
			if err != nil {
				return nil, err
			}
			logger.Info("exporting to greptimedb", "endpoint", endpoint, "database", database)
			writers = append(writers, gw)
		}
	}
	return export.NewMultiWriter(writers...), nil
}
