// YAML campaign config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"iotlab-radio/internal/radio"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid campaign config")

// DefaultChannels are the 802.15.4 channels of the 2.4 GHz band.
var DefaultChannels = []int{11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26}

// DefaultPowers are the transmit powers (dBm) supported by the at86rf231 radio.
var DefaultPowers = []int{-17, -12, -9, -7, -5, -4, -3, -2, -1, 0, 1, 2, 3}

const (
	DefaultPacketSize = 50
	DefaultNbPacket   = 100
	DefaultDelayMs    = 1
	DefaultTimeoutS   = 5
)

// CampaignConfig is the immutable description of one sweep.
type CampaignConfig struct {
	Channels   []int    `yaml:"channels" json:"channel"`
	Powers     []int    `yaml:"powers" json:"power"`
	Nodes      []string `yaml:"nodes" json:"nodes"`
	NbPacket   int      `yaml:"nb_packet" json:"nb_packet"`
	PacketSize int      `yaml:"packet_size" json:"packet_size"`
	DelayMs    int      `yaml:"delay_ms" json:"delay"`
	TimeoutS   int      `yaml:"timeout_s" json:"timeout"`
}

// Default returns a config covering the full channel and power range.
func Default() CampaignConfig {
	return CampaignConfig{
		Channels:   append([]int(nil), DefaultChannels...),
		Powers:     append([]int(nil), DefaultPowers...),
		NbPacket:   DefaultNbPacket,
		PacketSize: DefaultPacketSize,
		DelayMs:    DefaultDelayMs,
		TimeoutS:   DefaultTimeoutS,
	}
}

// Load reads a YAML campaign file over the defaults and validates the result
// against the CUE schema at cueSchemaPath, or the embedded schema when empty.
// Nodes may still be empty; callers fill them from the link selection.
func Load(configPath, cueSchemaPath string) (*CampaignConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read campaign config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal campaign config: %w", err)
	}
	if err := ValidateWithCue(&cfg, cueSchemaPath); err != nil {
		return nil, err
	}
	slog.Debug("loaded campaign config", "path", configPath, "channels", len(cfg.Channels), "powers", len(cfg.Powers))
	return &cfg, nil
}

// Validate checks the invariants the sweep and the parser rely on.
func (c *CampaignConfig) Validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("%w: no channel", ErrInvalid)
	}
	if len(c.Powers) == 0 {
		return fmt.Errorf("%w: no power", ErrInvalid)
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("%w: no node", ErrInvalid)
	}
	if c.NbPacket <= 0 {
		return fmt.Errorf("%w: nb_packet must be > 0, got %d", ErrInvalid, c.NbPacket)
	}
	if c.TimeoutS < 0 || c.DelayMs < 0 {
		return fmt.Errorf("%w: negative delay or timeout", ErrInvalid)
	}
	if err := distinct("channel", c.Channels); err != nil {
		return err
	}
	if err := distinct("power", c.Powers); err != nil {
		return err
	}
	ids, err := radio.NodeIDs(c.Nodes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return distinct("node id", ids)
}

func distinct(what string, vals []int) error {
	seen := make(map[int]struct{}, len(vals))
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%w: duplicate %s %d", ErrInvalid, what, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

// Timeout is the ack timeout of the broadcast steps.
func (c *CampaignConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutS) * time.Second
}

// SendTimeout leaves room for the whole burst: delay*nb_packet plus the ack timeout.
func (c *CampaignConfig) SendTimeout() time.Duration {
	burst := time.Duration(c.DelayMs) * time.Millisecond * time.Duration(c.NbPacket)
	return burst + c.Timeout()
}

// Cells is the number of (channel, power, node) steps of the sweep.
func (c *CampaignConfig) Cells() int {
	return len(c.Channels) * len(c.Powers) * len(c.Nodes)
}
