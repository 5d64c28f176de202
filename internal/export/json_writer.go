package export

import (
	"context"
	"encoding/json"
	"io"

	"iotlab-radio/internal/parser"
)

// JSONWriter prints every table row as one JSON object per line.
// Rows carry a "table" key plus one key per column.
type JSONWriter struct {
	out io.Writer
	// NonZero skips rows whose value columns are all zero.
	NonZero bool
}

// NewJSONWriter creates a JSONWriter writing to out.
func NewJSONWriter(out io.Writer) *JSONWriter {
	return &JSONWriter{out: out}
}

// WriteTable implements TableWriter.
func (w *JSONWriter) WriteTable(_ context.Context, t parser.Table) error {
	enc := json.NewEncoder(w.out)
	cols := header(t)
	nIndex := len(t.Index())
	return t.Rows(func(row []int) error {
		if w.NonZero && allZero(row[nIndex:]) {
			return nil
		}
		obj := make(map[string]any, len(cols)+1)
		obj["table"] = t.Name()
		for i, c := range cols {
			obj[c] = row[i]
		}
		return enc.Encode(obj)
	})
}

// Close implements TableWriter.
func (w *JSONWriter) Close() error { return nil }

func allZero(vals []int) bool {
	for _, v := range vals {
		if v != 0 {
			return false
		}
	}
	return true
}
