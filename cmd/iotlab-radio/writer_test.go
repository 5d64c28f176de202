package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iotlab-radio/internal/logging"
)

// oneRowTable is a minimal parser.Table.
type oneRowTable struct{ vals []int }

func (t oneRowTable) Name() string { return "send" }
func (t oneRowTable) Index() []string { return []string{"channel", "power", "tx_node", "pkt_num"} }
func (t oneRowTable) Columns() []string { return []string{"pkt_send"} }
func (t oneRowTable) Len() int { return 1 }
func (t oneRowTable) Rows(fn func([]int) error) error {
	return fn(t.vals)
}

func TestNewTableWritersPrintOnly(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	w, err := newTableWriters(writerOptions{logPath: dir, printOnly: true, stdout: &out}, logging.Discard())
	if err != nil {
		t.Fatalf("newTableWriters returned error: %v", err)
	}
	if err := w.WriteTable(context.Background(), oneRowTable{vals: []int{11, 0, 2, 1, 1}}); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !strings.Contains(out.String(), `"pkt_send":1`) {
		t.Fatalf("expected JSON row on stdout, got %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "send-logs.csv")); !os.IsNotExist(err) {
		t.Fatalf("print-only must not write CSV files, stat err=%v", err)
	}
}

func TestNewTableWritersNonZero(t *testing.T) {
	var out bytes.Buffer
	w, err := newTableWriters(writerOptions{printOnly: true, nonZero: true, stdout: &out}, logging.Discard())
	if err != nil {
		t.Fatalf("newTableWriters returned error: %v", err)
	}
	if err := w.WriteTable(context.Background(), oneRowTable{vals: []int{11, 0, 2, 1, 0}}); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("zero rows must be skipped, got %q", out.String())
	}
}

func TestNewTableWritersCSV(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	dir := t.TempDir()
	w, err := newTableWriters(writerOptions{logPath: dir, runID: "e1", captured: time.Now()}, logging.Discard())
	if err != nil {
		t.Fatalf("newTableWriters returned error: %v", err)
	}
	defer w.Close()
	if err := w.WriteTable(context.Background(), oneRowTable{vals: []int{11, 0, 2, 1, 1}}); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "send-logs.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if want := "channel,power,tx_node,pkt_num,pkt_send\n11,0,2,1,1\n"; string(b) != want {
		t.Fatalf("csv = %q, want %q", b, want)
	}
}

func TestNewTableWritersMissingDir(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	if _, err := newTableWriters(writerOptions{logPath: filepath.Join(t.TempDir(), "nope")}, logging.Discard()); err == nil {
		t.Fatal("expected error for a missing run directory")
	}
}
