package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/spf13/cobra"

	"iotlab-radio/internal/campaign"
	"iotlab-radio/internal/config"
	"iotlab-radio/internal/logging"
	"iotlab-radio/internal/nodelink"
	"iotlab-radio/internal/radio"
)

var (
	replayFlags campaignFlags
	replayInput string
	replaySpeed float64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild a run directory from a raw capture",
	Long: "replay feeds a capture written by run --record through the line classifier " +
		"and saves the resulting node logs as a new run. The campaign recorded in the capture header is reused; " +
		"flags override it. Nodes default to those of the header, then to those seen in the capture.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := replayConfig(cmd.Flags().Changed)
		if err != nil {
			return err
		}
		dir, err := replayCapture(cmd, cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "radio logs saved in %s\n", dir)
		return nil
	},
}

func init() {
	replayFlags.register(replayCmd)
	fs := replayCmd.Flags()
	fs.StringVar(&replayInput, "input", "", "Capture file (JSON lines, .zst compressed allowed)")
	fs.Float64Var(&replaySpeed, "speed", 0, "Replay speed factor; 0 replays without delays")
	_ = replayCmd.MarkFlagRequired("input")
}

// replayConfig rebuilds the campaign of the capture from its header. Without
// a header, the sweep must come from a config file or explicit flags.
func replayConfig(changed func(string) bool) (config.CampaignConfig, error) {
	raw, err := nodelink.ReadHeader(replayInput)
	if err != nil {
		return config.CampaignConfig{}, fmt.Errorf("read capture %s: %w", replayInput, err)
	}
	if raw == nil {
		if replayFlags.configPath == "" && !(changed("channel") && changed("txpower") && changed("nb-packet")) {
			return config.CampaignConfig{}, fmt.Errorf("%w: capture %s has no campaign header, "+
				"give --config or --channel, --txpower and --nb-packet", config.ErrInvalid, replayInput)
		}
		return replayFlags.build(changed)
	}
	var captured config.CampaignConfig
	if err := json.Unmarshal(raw, &captured); err != nil {
		return config.CampaignConfig{}, fmt.Errorf("decode capture header: %w", err)
	}
	return replayFlags.buildOver(&captured, changed)
}

func replayCapture(cmd *cobra.Command, cfg config.CampaignConfig) (string, error) {
	ctx := cmd.Context()
	logger := logging.FromContext(ctx)

	acks := campaign.NewSynchronizer(campaign.DefaultPollStep, logger, nil)
	store := campaign.NewLogStore()
	classifier := campaign.NewClassifier(acks, store, nil, logger)

	var mu sync.Mutex
	seen := make(map[string]bool)
	n, err := nodelink.ReplayFile(ctx, replayInput, func(identifier, line string) {
		mu.Lock()
		seen[radio.NodeName(identifier)] = true
		mu.Unlock()
		classifier.HandleLine(identifier, line)
	}, replaySpeed)
	if err != nil {
		return "", fmt.Errorf("replay %s: %w", replayInput, err)
	}
	logger.Info("capture replayed", "path", replayInput, "lines", n, "node_logs", store.Len())

	nodes := cfg.Nodes
	if len(nodes) == 0 {
		nodes = sortedNodes(seen)
	}
	cfg.Nodes = nodes
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return campaign.NewPersister(replayFlags.logRoot, logger).
		Persist(resolveRunID(replayFlags.expID), cfg, nodes, store)
}

// sortedNodes orders identifiers by node id, then name.
func sortedNodes(seen map[string]bool) []string {
	nodes := make([]string, 0, len(seen))
	for n := range seen {
		if _, err := radio.NodeID(n); err == nil {
			nodes = append(nodes, n)
		}
	}
	slices.SortFunc(nodes, func(a, b string) int {
		ia, _ := radio.NodeID(a)
		ib, _ := radio.NodeID(b)
		if ia != ib {
			return ia - ib
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return nodes
}
