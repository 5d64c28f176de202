package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iotlab-radio/internal/campaign"
	"iotlab-radio/internal/config"
	"iotlab-radio/internal/logging"
	"iotlab-radio/internal/parser"
)

func testCampaign() config.CampaignConfig {
	return config.CampaignConfig{
		Channels:   []int{11},
		Powers:     []int{0},
		Nodes:      []string{"m3-1", "m3-2"},
		NbPacket:   2,
		PacketSize: 20,
		DelayMs:    1,
		TimeoutS:   0,
	}
}

func simOptions(root string) runOptions {
	var opts runOptions
	opts.logRoot = root
	opts.expID = "e2e"
	opts.link = linkFlags{kind: "sim", simLoss: 0, simSeed: 1}
	opts.pollStep = campaign.DefaultPollStep / 100
	return opts
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func executeErr(t *testing.T, args ...string) error {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	return rootCmd.ExecuteContext(context.Background())
}

func savedDir(out string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "radio logs saved in"))
}

// tableRows dumps every row of the parsed tables, keyed by table name.
func tableRows(t *testing.T, tables *parser.Tables) map[string][][]int {
	t.Helper()
	rows := make(map[string][][]int)
	for _, tbl := range tables.All() {
		require.NoError(t, tbl.Rows(func(row []int) error {
			rows[tbl.Name()] = append(rows[tbl.Name()], append([]int(nil), row...))
			return nil
		}))
	}
	return rows
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunThenParse(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	root := t.TempDir()
	opts := simOptions(root)
	opts.record = filepath.Join(root, "capture.jsonl.zst")

	ctx := logging.NewContext(context.Background(), logging.Discard())
	sum, err := runCampaign(ctx, testCampaign(), opts, false)
	require.NoError(t, err)
	assert.False(t, sum.Interrupted)
	assert.Equal(t, 2, sum.CellsDone)
	assert.Equal(t, "e2e", sum.RunID)
	assert.Equal(t, filepath.Join(root, "e2e"), filepath.Dir(sum.Dir))

	for _, node := range []string{"m3-1", "m3-2"} {
		assert.FileExists(t, campaign.NodeLogPath(sum.Dir, 11, 0, node))
	}

	execute(t, "parse", "--log-path", sum.Dir)

	recv := readCSV(t, filepath.Join(sum.Dir, "recv-logs.csv"))
	require.Len(t, recv, 1+2*1*2)
	assert.Equal(t, []string{"channel", "power", "rx_node", "tx_node", "pkt_num", "rssi", "lqi"}, recv[0])
	for _, row := range recv[1:] {
		assert.NotEqual(t, row[2], row[3], "self link in %v", row)
		assert.NotEqual(t, "0", row[6], "lossless link lost a packet: %v", row)
	}

	send := readCSV(t, filepath.Join(sum.Dir, "send-logs.csv"))
	require.Len(t, send, 1+2*2)
	for _, row := range send[1:] {
		assert.Equal(t, "1", row[4], "packet not sent: %v", row)
	}

	errs := readCSV(t, filepath.Join(sum.Dir, "error-logs.csv"))
	assert.Len(t, errs, 1+2)

	out := execute(t, "parse", "--log-path", sum.Dir, "--print-only", "--nonzero")
	assert.Contains(t, out, `"table":"send"`)
	assert.NotContains(t, out, `"table":"error"`)

	// rebuild the same run from the raw capture
	out = execute(t, "replay", "--input", opts.record, "--log-root", filepath.Join(root, "replayed"), "-i", "rep")
	dir := savedDir(out)
	snap, err := config.ReadSnapshot(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"m3-1", "m3-2"}, snap.Nodes)
	assert.Equal(t, "rep", snap.RunID)
	for _, node := range []string{"m3-1", "m3-2"} {
		want, err := os.ReadFile(campaign.NodeLogPath(sum.Dir, 11, 0, node))
		require.NoError(t, err)
		got, err := os.ReadFile(campaign.NodeLogPath(dir, 11, 0, node))
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(got))
	}
}

func TestReplayReusesCapturedCampaign(t *testing.T) {
	root := t.TempDir()
	opts := simOptions(root)
	opts.record = filepath.Join(root, "capture.jsonl")
	cfg := testCampaign()
	cfg.Channels = []int{11, 12}
	cfg.NbPacket = 150

	ctx := logging.NewContext(context.Background(), logging.Discard())
	sum, err := runCampaign(ctx, cfg, opts, false)
	require.NoError(t, err)

	out := execute(t, "replay", "--input", opts.record, "--log-root", filepath.Join(root, "replayed"), "-i", "rep150")
	dir := savedDir(out)
	snap, err := config.ReadSnapshot(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Channels, snap.Channels)
	assert.Equal(t, cfg.Powers, snap.Powers)
	assert.Equal(t, 150, snap.NbPacket)
	assert.Equal(t, cfg.Nodes, snap.Nodes)

	original, err := parser.Parse(ctx, sum.Dir)
	require.NoError(t, err)
	replayed, err := parser.Parse(ctx, dir)
	require.NoError(t, err)
	assert.Zero(t, replayed.Stats.OutOfRange)
	assert.Zero(t, replayed.Stats.Missing)
	assert.Equal(t, original.Stats, replayed.Stats)
	assert.Equal(t, tableRows(t, original), tableRows(t, replayed))
}

func TestReplayRefusesCaptureWithoutCampaign(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "old-capture.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"ts":"2024-05-17T10:30:00Z","node":"m3-1","line":"{\"ack\":\"clear\"}"}`+"\n"), 0o644))

	err := executeErr(t, "replay", "--input", path, "--log-root", filepath.Join(root, "replayed"), "-i", "old")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
	_, statErr := os.Stat(filepath.Join(root, "replayed"))
	assert.True(t, os.IsNotExist(statErr), "nothing may be saved")
}

func TestRunCampaignUnknownLink(t *testing.T) {
	opts := simOptions(t.TempDir())
	opts.link.kind = "carrier-pigeon"
	_, err := runCampaign(context.Background(), testCampaign(), opts, false)
	assert.ErrorContains(t, err, "unknown link")
}

func TestRunCampaignInterrupted(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := runCampaign(ctx, testCampaign(), simOptions(root), false)
	require.NoError(t, err)
	assert.True(t, sum.Interrupted)
	assert.FileExists(t, filepath.Join(sum.Dir, config.SnapshotFile))
}
