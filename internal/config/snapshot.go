package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SnapshotFile is the name of the config snapshot inside a run directory.
const SnapshotFile = "config.json"

// TimestampLayout formats the capture directory name (YYYYmmdd-HHMMSS).
const TimestampLayout = "20060102-150405"

// RunConfig is the config snapshot persisted with every campaign.
type RunConfig struct {
	CampaignConfig
	RunID    string    `json:"run_id"`
	Captured time.Time `json:"captured"`
}

// WriteSnapshot writes cfg as <dir>/config.json.
func WriteSnapshot(dir string, cfg RunConfig) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, SnapshotFile)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadSnapshot reads <dir>/config.json back and checks its invariants.
func ReadSnapshot(dir string) (*RunConfig, error) {
	path := filepath.Join(dir, SnapshotFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg RunConfig
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
