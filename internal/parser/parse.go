// Package parser rebuilds dense analysis tables from a persisted campaign.
package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"iotlab-radio/internal/campaign"
	"iotlab-radio/internal/config"
	"iotlab-radio/internal/logging"
	"iotlab-radio/internal/radio"
)

// Parse reads <runDir>/config.json and every per-node log it names, and
// folds them into zero-filled tables. Missing node logs and out-of-range
// packets are logged and skipped; unreadable files are errors.
func Parse(ctx context.Context, runDir string) (*Tables, error) {
	log := logging.FromContext(ctx)
	snap, err := config.ReadSnapshot(runDir)
	if err != nil {
		return nil, err
	}
	dom, err := NewDomain(snap.CampaignConfig)
	if err != nil {
		return nil, err
	}
	t := NewTables(dom)
	t.RunID, t.Captured = snap.RunID, snap.Captured

	for _, ch := range snap.Channels {
		for _, pw := range snap.Powers {
			for _, node := range snap.Nodes {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				id, _ := radio.NodeID(node) // validated by NewDomain
				log.Debug("parsing logs", "channel", ch, "power", pw, "node", id)
				path := campaign.NodeLogPath(runDir, ch, pw, radio.NodeName(node))
				nl, err := readNodeLog(path)
				if errors.Is(err, os.ErrNotExist) {
					t.Stats.Missing++
					continue
				}
				if err != nil {
					return nil, err
				}
				t.Stats.Files++
				for _, rec := range nl.Logs {
					t.fold(log, ch, pw, id, rec)
				}
			}
		}
	}
	log.Info("parsed radio logs", "dir", runDir, "files", t.Stats.Files, "missing", t.Stats.Missing,
		"records", t.Stats.Records, "out_of_range", t.Stats.OutOfRange)
	return t, nil
}

func readNodeLog(path string) (campaign.NodeLog, error) {
	var nl campaign.NodeLog
	b, err := os.ReadFile(path)
	if err != nil {
		return nl, err
	}
	if err := json.Unmarshal(b, &nl); err != nil {
		return nl, fmt.Errorf("decode %s: %w", path, err)
	}
	return nl, nil
}

// fold applies one record logged by node at (ch, pw). Reception reports carry
// the transmitter id and the error counters of the session; anything else is
// read as a transmission report.
func (t *Tables) fold(log *slog.Logger, ch, pw, node int, rec radio.Record) {
	t.Stats.Records++
	if rec.Recv != nil {
		tx, err := rec.TxNode()
		if err != nil {
			t.Stats.UnknownLink++
			log.Warn("reception report without transmitter", "channel", ch, "power", pw, "node", node, "err", err)
			return
		}
		if _, ok := t.errorIndex(ch, pw, node, tx); !ok {
			t.Stats.UnknownLink++
			log.Warn("reception from unknown transmitter", "channel", ch, "power", pw, "rx_node", node, "tx_node", tx)
			return
		}
		for _, p := range rec.Recv {
			if err := t.setRecv(ch, pw, node, tx, p.PktNum, Reception{RSSI: p.RSSI, LQI: p.LQI}); err != nil {
				t.Stats.OutOfRange++
				log.Warn("packet error", "row", []int{ch, pw, node, tx, p.PktNum}, "nb_packet", t.NbPacket)
			}
		}
		// the last report of a session wins
		_ = t.setError(ch, pw, node, tx, rec.Errors())
		return
	}
	for _, p := range rec.Transmissions() {
		if err := t.setSend(ch, pw, node, p.PktNum, p.PktSend); err != nil {
			t.Stats.OutOfRange++
			log.Warn("packet error", "row", []int{ch, pw, node, p.PktNum}, "nb_packet", t.NbPacket)
		}
	}
}
