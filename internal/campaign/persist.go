package campaign

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"iotlab-radio/internal/config"
	"iotlab-radio/internal/logging"
)

// DefaultLogRoot is the directory campaigns are saved under.
const DefaultLogRoot = "logs"

// Persister writes a LogStore to <root>/<run_id>/<timestamp>/.
type Persister struct {
	Root   string
	Now    func() time.Time
	Logger *slog.Logger
}

// NewPersister creates a persister rooted at root.
func NewPersister(root string, logger *slog.Logger) *Persister {
	if root == "" {
		root = DefaultLogRoot
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Persister{Root: root, Now: time.Now, Logger: logger}
}

// RunDir returns the directory of a run captured at ts.
func (p *Persister) RunDir(runID string, ts time.Time) string {
	return filepath.Join(p.Root, runID, ts.Format(config.TimestampLayout))
}

// Persist writes one file per stored NodeLog at <dir>/<channel>/<power>/<node>.json
// then the config snapshot. It stops at the first filesystem error; a run
// directory without config.json is incomplete.
func (p *Persister) Persist(runID string, cfg config.CampaignConfig, nodes []string, store *LogStore) (string, error) {
	ts := p.Now()
	dir := p.RunDir(runID, ts)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dir, fmt.Errorf("create run directory: %w", err)
	}

	written := 0
	err := store.Each(func(channel, power, _ int, log NodeLog) error {
		path := NodeLogPath(dir, channel, power, log.Node)
		if err := writeJSON(path, log); err != nil {
			return err
		}
		p.Logger.Debug("saved node log", "path", path, "records", len(log.Logs))
		written++
		return nil
	})
	if err != nil {
		return dir, err
	}

	cfg.Nodes = append([]string(nil), nodes...)
	snap := config.RunConfig{CampaignConfig: cfg, RunID: runID, Captured: ts.UTC()}
	if err := config.WriteSnapshot(dir, snap); err != nil {
		return dir, err
	}
	p.Logger.Info("radio logs saved", "dir", dir, "node_logs", written)
	return dir, nil
}

// NodeLogPath is the file holding the log of node for (channel, power).
func NodeLogPath(dir string, channel, power int, node string) string {
	return filepath.Join(dir, strconv.Itoa(channel), strconv.Itoa(power), node+".json")
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
