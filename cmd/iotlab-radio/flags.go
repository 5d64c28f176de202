package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"iotlab-radio/internal/config"
	"iotlab-radio/internal/nodelink"
)

// campaignFlags are the sweep settings shared by run and replay.
type campaignFlags struct {
	configPath string
	schemaPath string
	nodes      string
	channels   []int
	powers     []int
	nbPacket   int
	packetSize int
	delayMs    int
	timeoutS   int
	expID      string
	logRoot    string
}

func (f *campaignFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "Path to campaign configuration YAML")
	fs.StringVar(&f.schemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	fs.StringVarP(&f.nodes, "nodes", "l", "", "Nodes, comma separated (e.g. m3-1,m3-2)")
	fs.IntSliceVar(&f.channels, "channel", config.DefaultChannels, "Radio channels")
	fs.IntSliceVar(&f.powers, "txpower", config.DefaultPowers, "Transmit powers (dBm)")
	fs.IntVar(&f.nbPacket, "nb-packet", config.DefaultNbPacket, "Packets sent by each node per step")
	fs.IntVar(&f.packetSize, "packet-size", config.DefaultPacketSize, "Packet size in bytes")
	fs.IntVar(&f.delayMs, "delay", config.DefaultDelayMs, "Delay between packets (ms)")
	fs.IntVar(&f.timeoutS, "timeout", config.DefaultTimeoutS, "Ack timeout (s)")
	fs.StringVarP(&f.expID, "exp-id", "i", "", "Experiment id naming the run; IOTLAB_EXP_ID or a random id when unset")
	fs.StringVar(&f.logRoot, "log-root", "logs", "Directory the run is saved under")
}

// build loads the config file, if any, then applies the flags the user set.
func (f *campaignFlags) build(changed func(string) bool) (config.CampaignConfig, error) {
	return f.buildOver(nil, changed)
}

// buildOver is build with base in place of the defaults when no config file
// is given. Flags the user set still take precedence.
func (f *campaignFlags) buildOver(base *config.CampaignConfig, changed func(string) bool) (config.CampaignConfig, error) {
	cfg := config.Default()
	fromFile := false
	switch {
	case f.configPath != "":
		loaded, err := config.Load(f.configPath, f.schemaPath)
		if err != nil {
			return cfg, err
		}
		cfg = *loaded
		fromFile = true
	case base != nil:
		cfg = *base
		cfg.Channels = append([]int(nil), base.Channels...)
		cfg.Powers = append([]int(nil), base.Powers...)
		cfg.Nodes = append([]string(nil), base.Nodes...)
		fromFile = true
	}
	if changed("channel") || !fromFile {
		cfg.Channels = append([]int(nil), f.channels...)
	}
	if changed("txpower") || !fromFile {
		cfg.Powers = append([]int(nil), f.powers...)
	}
	if changed("nb-packet") {
		cfg.NbPacket = f.nbPacket
	}
	if changed("packet-size") {
		cfg.PacketSize = f.packetSize
	}
	if changed("delay") {
		cfg.DelayMs = f.delayMs
	}
	if changed("timeout") {
		cfg.TimeoutS = f.timeoutS
	}
	if nodes := nodelink.ParseNodeList(f.nodes); len(nodes) > 0 {
		cfg.Nodes = nodes
	}
	if err := config.ValidateWithCue(&cfg, f.schemaPath); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// resolveRunID picks the experiment id naming the run directory.
func resolveRunID(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("IOTLAB_EXP_ID"); env != "" {
		return env
	}
	return uuid.NewString()
}
