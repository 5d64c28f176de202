package campaign

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iotlab-radio/internal/radio"
)

func newTestClassifier() (*Classifier, *Synchronizer, *LogStore) {
	acks := NewSynchronizer(testStep, nil, nil)
	store := NewLogStore()
	return NewClassifier(acks, store, nil, nil), acks, store
}

func TestClassifierAck(t *testing.T) {
	c, acks, store := newTestClassifier()
	ev := c.Classify("m3-12", `{"ack": "channel"}`)
	assert.Equal(t, radio.EventAck, ev.Kind)
	assert.Equal(t, []int{12}, acks.Acked("channel"))
	assert.Empty(t, acks.Acked("power"))
	assert.Zero(t, store.Len())
}

func TestClassifierEmptyReceptionIsDropped(t *testing.T) {
	c, acks, store := newTestClassifier()
	ev := c.Classify("m3-12", `{"channel":11,"power":-3,"recv":[],"node_id":"12"}`)
	assert.Equal(t, radio.EventEmptyRecv, ev.Kind)
	assert.Zero(t, store.Len())
	_, ok := store.Lookup(11, -3, 12)
	assert.False(t, ok)
	assert.Empty(t, acks.Acked("show"))
}

func TestClassifierReceptionIsStored(t *testing.T) {
	c, _, store := newTestClassifier()
	ev := c.Classify("m3-12", `{"channel":11,"power":-3,"recv":[{"pkt_num":0,"rssi":-60,"lqi":40}],"node_id":"14"}`)
	require.Equal(t, radio.EventRecv, ev.Kind)

	log, ok := store.Lookup(11, -3, 12)
	require.True(t, ok)
	assert.Equal(t, "m3-12", log.Node)
	require.Len(t, log.Logs, 1)
	tx, err := log.Logs[0].TxNode()
	require.NoError(t, err)
	assert.Equal(t, 14, tx)
	assert.Equal(t, []radio.RecvPacket{{PktNum: 0, RSSI: -60, LQI: 40}}, log.Logs[0].Recv)
}

func TestClassifierTransmissionAndPrefix(t *testing.T) {
	c, _, store := newTestClassifier()
	c.HandleLine("node-m3-4", `{"channel":26,"power":3,"send":true,"pkt_num":7,"pkt_send":1}`)
	log, ok := store.Lookup(26, 3, 4)
	require.True(t, ok)
	assert.Equal(t, "m3-4", log.Node)
	assert.Equal(t, []radio.SendPacket{{PktNum: 7, PktSend: 1}}, log.Logs[0].Transmissions())
}

func TestClassifierIgnoresNoise(t *testing.T) {
	c, _, store := newTestClassifier()
	for _, line := range []string{
		"Type '-h' for help",
		`{"recv":[{"pkt_num":0,"rssi":-60,"lqi":40}],"node_id":"1"}`, // no channel
		`{broken`,
	} {
		c.HandleLine("m3-2", line)
	}
	c.HandleLine("bogus", `{"ack":"show"}`)
	assert.Zero(t, store.Len())
}

func TestClassifierConcurrentLines(t *testing.T) {
	c, _, store := newTestClassifier()
	var wg sync.WaitGroup
	for n := 1; n <= 8; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.HandleLine("m3-"+strconv.Itoa(n), `{"channel":11,"power":0,"recv":[{"pkt_num":0,"rssi":-60,"lqi":40}],"node_id":"99"}`)
			}
		}(n)
	}
	wg.Wait()
	assert.Equal(t, 8, store.Len())
	log, ok := store.Lookup(11, 0, 5)
	require.True(t, ok)
	assert.Len(t, log.Logs, 50)
}

func TestLogStoreEachOrderAndCopies(t *testing.T) {
	store := NewLogStore()
	rec := radio.Record{Channel: radio.Int(12)}
	store.Append(12, 0, 2, "m3-2", rec)
	store.Append(11, 3, 1, "m3-1", rec)
	store.Append(11, -3, 2, "m3-2", rec)
	store.Append(11, -3, 1, "m3-1", rec)
	store.Append(11, -3, 1, "m3-1", rec)

	var keys [][3]int
	err := store.Each(func(ch, pw, node int, log NodeLog) error {
		keys = append(keys, [3]int{ch, pw, node})
		log.Logs[0] = radio.Record{}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][3]int{{11, -3, 1}, {11, -3, 2}, {11, 3, 1}, {12, 0, 2}}, keys)
	assert.Equal(t, 4, store.Len())

	log, _ := store.Lookup(11, -3, 1)
	assert.Len(t, log.Logs, 2)
	assert.NotNil(t, log.Logs[0].Channel, "Each hands out copies")

	_, ok := store.Lookup(13, 0, 1)
	assert.False(t, ok)
	_, ok = store.Lookup(12, 0, 1)
	assert.False(t, ok, "lookups do not create entries")
	assert.Equal(t, 4, store.Len())
}
