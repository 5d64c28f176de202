// Package export writes parsed radio tables to files, stdout and GreptimeDB.
package export

import (
	"context"

	"iotlab-radio/internal/parser"
)

// TableWriter receives dense tables one at a time.
type TableWriter interface {
	WriteTable(ctx context.Context, t parser.Table) error
	Close() error
}

// WriteAll sends every table to w, stopping at the first error.
func WriteAll(ctx context.Context, w TableWriter, tables []parser.Table) error {
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.WriteTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// MultiWriter fans tables out to several writers.
type MultiWriter struct {
	writers []TableWriter
}

// NewMultiWriter creates a MultiWriter.
func NewMultiWriter(ws ...TableWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// WriteTable sends t to every writer in order.
func (mw *MultiWriter) WriteTable(ctx context.Context, t parser.Table) error {
	for _, w := range mw.writers {
		if err := w.WriteTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer and returns the first error.
func (mw *MultiWriter) Close() error {
	var err error
	for _, w := range mw.writers {
		if e := w.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

func header(t parser.Table) []string {
	return append(append([]string(nil), t.Index()...), t.Columns()...)
}
