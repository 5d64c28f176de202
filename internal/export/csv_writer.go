package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"iotlab-radio/internal/parser"
)

// CSVWriter writes each table to <dir>/<name>-logs.csv with a header row.
type CSVWriter struct {
	dir   string
	paths []string
}

// NewCSVWriter creates a CSVWriter writing into dir, which must exist.
func NewCSVWriter(dir string) (*CSVWriter, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &CSVWriter{dir: dir}, nil
}

// Path returns the file a table named name is written to.
func (w *CSVWriter) Path(name string) string {
	return filepath.Join(w.dir, name+"-logs.csv")
}

// Paths lists the files written so far.
func (w *CSVWriter) Paths() []string { return append([]string(nil), w.paths...) }

// WriteTable writes t, replacing any previous file.
func (w *CSVWriter) WriteTable(_ context.Context, t parser.Table) (err error) {
	path := w.Path(t.Name())
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()

	cw := csv.NewWriter(f)
	if err := cw.Write(header(t)); err != nil {
		return err
	}
	var rec []string
	err = t.Rows(func(row []int) error {
		rec = rec[:0]
		for _, v := range row {
			rec = append(rec, strconv.Itoa(v))
		}
		return cw.Write(rec)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.paths = append(w.paths, path)
	return nil
}

// Close implements TableWriter.
func (w *CSVWriter) Close() error { return nil }
