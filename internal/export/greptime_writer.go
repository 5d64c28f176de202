package export

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"iotlab-radio/internal/logging"
	"iotlab-radio/internal/parser"
)

const (
	// DefaultGreptimePort is the gRPC port of GreptimeDB.
	DefaultGreptimePort = 4001
	// DefaultBatchSize bounds the rows sent in one write request.
	DefaultBatchSize = 5000
	// TablePrefix is prepended to every exported table name.
	TablePrefix = "radio_"
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes parsed tables to GreptimeDB. Index columns become
// tags alongside run_id; the capture time of the run is the time index.
type GreptimeDBWriter struct {
	client    greptimeClient
	runID     string
	captured  time.Time
	batchSize int
	logger    *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint (host[:port]) and database.
func NewGreptimeDBWriter(endpoint, database, runID string, captured time.Time, logger *slog.Logger) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return newGreptimeDBWriter(client, runID, captured, logger), nil
}

func newGreptimeDBWriter(client greptimeClient, runID string, captured time.Time, logger *slog.Logger) *GreptimeDBWriter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &GreptimeDBWriter{
		client:    client,
		runID:     runID,
		captured:  captured,
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, p, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, DefaultGreptimePort, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("invalid greptime endpoint %q: %w", endpoint, err)
	}
	return host, port, nil
}

func (w *GreptimeDBWriter) newTable(t parser.Table) (*table.Table, error) {
	tbl, err := table.New(TablePrefix + t.Name())
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("run_id", types.STRING); err != nil {
		return nil, err
	}
	for _, c := range t.Index() {
		if err := tbl.AddTagColumn(c, types.INT64); err != nil {
			return nil, err
		}
	}
	for _, c := range t.Columns() {
		if err := tbl.AddFieldColumn(c, types.INT64); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

// WriteTable sends t in batches of at most batchSize rows.
func (w *GreptimeDBWriter) WriteTable(ctx context.Context, t parser.Table) error {
	var (
		tbl   *table.Table
		n     int
		total int
	)
	flush := func() error {
		if n == 0 {
			return nil
		}
		if _, err := w.client.Write(ctx, tbl); err != nil {
			w.logger.Error("greptime write failed", "table", t.Name(), "err", err)
			return err
		}
		total += n
		n = 0
		tbl = nil
		return nil
	}

	err := t.Rows(func(row []int) error {
		if tbl == nil {
			var err error
			if tbl, err = w.newTable(t); err != nil {
				return err
			}
		}
		vals := make([]any, 0, len(row)+2)
		vals = append(vals, w.runID)
		for _, v := range row {
			vals = append(vals, int64(v))
		}
		vals = append(vals, w.captured)
		if err := tbl.AddRow(vals...); err != nil {
			return err
		}
		n++
		if n >= w.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	w.logger.Info("exported table to greptime", "table", TablePrefix+t.Name(), "rows", total)
	return nil
}

// Close implements TableWriter.
func (w *GreptimeDBWriter) Close() error { return nil }
