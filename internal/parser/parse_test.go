package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iotlab-radio/internal/campaign"
	"iotlab-radio/internal/config"
	"iotlab-radio/internal/radio"
)

func scenarioConfig() config.CampaignConfig {
	cfg := config.Default()
	cfg.Channels = []int{11}
	cfg.Powers = []int{-3}
	cfg.Nodes = []string{"m3-1", "m3-2"}
	cfg.NbPacket = 2
	return cfg
}

func persist(t *testing.T, cfg config.CampaignConfig, store *campaign.LogStore) string {
	t.Helper()
	p := campaign.NewPersister(t.TempDir(), nil)
	p.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	dir, err := p.Persist("test", cfg, cfg.Nodes, store)
	require.NoError(t, err)
	return dir
}

func dump(t *testing.T, tbl Table) [][]int {
	t.Helper()
	var rows [][]int
	require.NoError(t, tbl.Rows(func(row []int) error {
		rows = append(rows, append([]int(nil), row...))
		return nil
	}))
	return rows
}

func TestParseEndToEndScenario(t *testing.T) {
	cfg := scenarioConfig()
	store := campaign.NewLogStore()
	// node 1 transmits both packets
	store.Append(11, -3, 1, "m3-1", radio.Record{
		Channel: radio.Int(11), Power: radio.Int(-3), NodeID: "1",
		Send: &radio.SendReport{Packets: []radio.SendPacket{{PktNum: 0, PktSend: 1}, {PktNum: 1, PktSend: 1}}},
	})
	// node 2 only hears packet 0
	store.Append(11, -3, 2, "m3-2", radio.Record{
		Channel: radio.Int(11), Power: radio.Int(-3), NodeID: "1",
		Recv:           []radio.RecvPacket{{PktNum: 0, RSSI: -70, LQI: 30}},
		NbGenericError: radio.Int(0), NbMagicError: radio.Int(0), NbCRCError: radio.Int(0), NbControlError: radio.Int(1),
	})

	tables, err := Parse(context.Background(), persist(t, cfg, store))
	require.NoError(t, err)

	got, ok := tables.Recv(11, -3, 2, 1, 0)
	require.True(t, ok)
	assert.Equal(t, Reception{RSSI: -70, LQI: 30}, got)
	got, ok = tables.Recv(11, -3, 2, 1, 1)
	require.True(t, ok)
	assert.Equal(t, Reception{}, got)

	errs, ok := tables.Error(11, -3, 2, 1)
	require.True(t, ok)
	assert.Equal(t, radio.ErrorCounters{Control: 1}, errs)

	sent, ok := tables.Send(11, -3, 1, 1)
	require.True(t, ok)
	assert.Equal(t, 1, sent)
	sent, _ = tables.Send(11, -3, 2, 0)
	assert.Zero(t, sent)

	assert.Equal(t, Stats{Files: 2, Records: 2}, tables.Stats)

	all := tables.All()
	require.Len(t, all, 3)
	want := [][]int{
		{11, -3, 1, 2, 0, 0, 0},
		{11, -3, 1, 2, 1, 0, 0},
		{11, -3, 2, 1, 0, -70, 30},
		{11, -3, 2, 1, 1, 0, 0},
	}
	if diff := cmp.Diff(want, dump(t, all[0])); diff != "" {
		t.Errorf("recv rows (-want +got):\n%s", diff)
	}
	want = [][]int{
		{11, -3, 1, 2, 0, 0, 0, 0},
		{11, -3, 2, 1, 0, 0, 0, 1},
	}
	if diff := cmp.Diff(want, dump(t, all[2])); diff != "" {
		t.Errorf("error rows (-want +got):\n%s", diff)
	}
}

func TestParseDomainShape(t *testing.T) {
	cfg := config.Default()
	cfg.Channels = []int{26, 11}
	cfg.Powers = []int{0, -17, 3}
	cfg.Nodes = []string{"m3-10", "m3-3", "m3-7"}
	cfg.NbPacket = 4

	tables, err := Parse(context.Background(), persist(t, cfg, campaign.NewLogStore()))
	require.NoError(t, err)
	assert.Equal(t, Stats{Missing: 18}, tables.Stats)

	recv, send, errs := tables.All()[0], tables.All()[1], tables.All()[2]
	assert.Equal(t, 2*3*3*2*4, recv.Len())
	assert.Equal(t, 2*3*3*4, send.Len())
	assert.Equal(t, 2*3*3*2, errs.Len())

	perTx := map[[3]int]int{}
	for _, row := range dump(t, send) {
		perTx[[3]int{row[0], row[1], row[2]}]++
		assert.Zero(t, row[4])
	}
	assert.Len(t, perTx, 18)
	for k, n := range perTx {
		assert.Equal(t, cfg.NbPacket, n, "send rows for %v", k)
	}

	for _, tbl := range []Table{recv, errs} {
		rows := dump(t, tbl)
		assert.Len(t, rows, tbl.Len())
		for _, row := range rows {
			assert.NotEqual(t, row[2], row[3], "%s has a self-link row %v", tbl.Name(), row)
		}
	}
	assert.Equal(t, []int{26, 0, 10, 3, 0, 0, 0}, dump(t, recv)[0], "rows follow config order")

	_, ok := tables.Recv(11, 0, 3, 3, 0)
	assert.False(t, ok)
	_, ok = tables.Error(11, 0, 7, 7)
	assert.False(t, ok)
	_, ok = tables.Send(11, 0, 3, 4)
	assert.False(t, ok)
}

func TestParseSkipsOutOfRangeAndUnknownLinks(t *testing.T) {
	cfg := scenarioConfig()
	store := campaign.NewLogStore()
	store.Append(11, -3, 2, "m3-2", radio.Record{
		Channel: radio.Int(11), Power: radio.Int(-3), NodeID: "1",
		Recv: []radio.RecvPacket{{PktNum: 1, RSSI: -50, LQI: 90}, {PktNum: 2, RSSI: -51, LQI: 91}},
	})
	store.Append(11, -3, 2, "m3-2", radio.Record{
		Channel: radio.Int(11), Power: radio.Int(-3), NodeID: "2", // itself
		Recv: []radio.RecvPacket{{PktNum: 0, RSSI: -1, LQI: 1}},
	})
	store.Append(11, -3, 2, "m3-2", radio.Record{
		Channel: radio.Int(11), Power: radio.Int(-3), NodeID: "33",
		Recv: []radio.RecvPacket{{PktNum: 0, RSSI: -1, LQI: 1}},
	})
	store.Append(11, -3, 1, "m3-1", radio.Record{
		Channel: radio.Int(11), Power: radio.Int(-3), NodeID: "1",
		Send: &radio.SendReport{Packets: []radio.SendPacket{{PktNum: 0, PktSend: 1}, {PktNum: 5, PktSend: 1}}},
	})

	tables, err := Parse(context.Background(), persist(t, cfg, store))
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 2, Records: 4, OutOfRange: 2, UnknownLink: 2}, tables.Stats)

	got, _ := tables.Recv(11, -3, 2, 1, 1)
	assert.Equal(t, Reception{RSSI: -50, LQI: 90}, got)
	for _, row := range dump(t, tables.All()[0]) {
		assert.NotEqual(t, -51, row[5])
		assert.NotEqual(t, -1, row[5])
	}
	sent, _ := tables.Send(11, -3, 1, 0)
	assert.Equal(t, 1, sent)
}

func TestParseErrorCountersOverwrite(t *testing.T) {
	cfg := scenarioConfig()
	store := campaign.NewLogStore()
	for _, crc := range []int{4, 2} {
		store.Append(11, -3, 1, "m3-1", radio.Record{
			Channel: radio.Int(11), Power: radio.Int(-3), NodeID: "2",
			Recv:       []radio.RecvPacket{{PktNum: 0, RSSI: -60, LQI: 50}},
			NbCRCError: radio.Int(crc),
		})
	}
	tables, err := Parse(context.Background(), persist(t, cfg, store))
	require.NoError(t, err)
	errs, _ := tables.Error(11, -3, 1, 2)
	assert.Equal(t, radio.ErrorCounters{CRC: 2}, errs)
}

func TestParseIsDeterministic(t *testing.T) {
	acks := campaign.NewSynchronizer(time.Millisecond, nil, nil)
	store := campaign.NewLogStore()
	c := campaign.NewClassifier(acks, store, nil, nil)
	for _, l := range []struct{ node, line string }{
		{"m3-2", `{"channel":11,"power":-3,"recv":[{"pkt_num":1,"rssi":-62,"lqi":70}],"node_id":"1","nb_crc_error":1}`},
		{"m3-1", `{"channel":11,"power":-3,"node_id":"1","send":[{"pkt_num":0,"pkt_send":1},{"pkt_num":1,"pkt_send":1}]}`},
		{"m3-1", `{"channel":11,"power":-3,"recv":[{"pkt_num":0,"rssi":-64,"lqi":60}],"node_id":"2"}`},
	} {
		c.HandleLine(l.node, l.line)
	}
	dir := persist(t, scenarioConfig(), store)

	a, err := Parse(context.Background(), dir)
	require.NoError(t, err)
	b, err := Parse(context.Background(), dir)
	require.NoError(t, err)
	for i := range a.All() {
		if diff := cmp.Diff(dump(t, a.All()[i]), dump(t, b.All()[i])); diff != "" {
			t.Errorf("%s differs between runs:\n%s", a.All()[i].Name(), diff)
		}
	}
	got, _ := a.Recv(11, -3, 1, 2, 0)
	assert.Equal(t, Reception{RSSI: -64, LQI: 60}, got)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(context.Background(), t.TempDir())
	assert.Error(t, err, "a run directory needs config.json")

	dir := persist(t, scenarioConfig(), campaign.NewLogStore())
	path := campaign.NodeLogPath(dir, 11, -3, "m3-2")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = Parse(context.Background(), dir)
	assert.ErrorContains(t, err, "m3-2.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Parse(ctx, persist(t, scenarioConfig(), campaign.NewLogStore()))
	assert.ErrorIs(t, err, context.Canceled)
}
