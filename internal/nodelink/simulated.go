package nodelink

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"iotlab-radio/internal/radio"
)

// SimConfig tunes the simulated testbed.
type SimConfig struct {
	// LossRate is the probability that a packet is not received.
	LossRate float64
	// Silent nodes execute commands but never acknowledge them.
	Silent []string
	// Latency delays every line; zero delivers lines before Send returns.
	Latency time.Duration
	Seed    int64
}

type simNode struct {
	name    string
	id      int
	channel int
	power   int
	txNode  string
	recv    []radio.RecvPacket
	errs    radio.ErrorCounters
	silent  bool
}

// Simulated emulates the radio-characterization firmware of a set of nodes
// sharing one medium. Link quality decreases with the distance between node ids.
type Simulated struct {
	mu      sync.Mutex
	nodes   []string
	state   map[string]*simNode
	handler LineHandler
	rng     *rand.Rand
	cfg     SimConfig
	timers  sync.WaitGroup
	closed  bool
}

// NewSimulated builds a testbed of nodes delivering lines to handler.
func NewSimulated(nodes []string, handler LineHandler, cfg SimConfig) (*Simulated, error) {
	silent := make(map[string]bool, len(cfg.Silent))
	for _, n := range cfg.Silent {
		silent[n] = true
	}
	s := &Simulated{
		nodes:   append([]string(nil), nodes...),
		state:   make(map[string]*simNode, len(nodes)),
		handler: handler,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		cfg:     cfg,
	}
	for _, n := range nodes {
		id, err := radio.NodeID(n)
		if err != nil {
			return nil, err
		}
		s.state[n] = &simNode{name: n, id: id, silent: silent[n]}
	}
	return s, nil
}

// Nodes implements Link.
func (s *Simulated) Nodes() []string { return append([]string(nil), s.nodes...) }

// Broadcast implements Link.
func (s *Simulated) Broadcast(ctx context.Context, text string) error {
	return s.Send(ctx, s.nodes, text)
}

// Send implements Link.
func (s *Simulated) Send(ctx context.Context, nodes []string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	type out struct{ node, line string }
	var lines []out

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("simulated link closed")
	}
	for _, n := range nodes {
		if _, ok := s.state[n]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%s: %w", n, ErrUnknownNode)
		}
	}
	for _, n := range nodes {
		for _, line := range s.execute(s.state[n], strings.TrimSpace(text)) {
			lines = append(lines, out{n, line})
		}
	}
	s.mu.Unlock()

	for _, l := range lines {
		s.deliver(l.node, l.line)
	}
	return nil
}

func (s *Simulated) deliver(node, line string) {
	if s.cfg.Latency <= 0 {
		s.handler(node, line)
		return
	}
	s.timers.Add(1)
	time.AfterFunc(s.cfg.Latency, func() {
		defer s.timers.Done()
		s.handler(node, line)
	})
}

// execute runs one firmware command on node and returns the lines it prints.
// Callers hold s.mu.
func (s *Simulated) execute(node *simNode, cmd string) []string {
	args := strings.Fields(cmd)
	if len(args) == 0 {
		return nil
	}
	var out []string
	ack := func(kind string) {
		if !node.silent {
			out = append(out, mustJSON(radio.Record{Ack: kind}))
		}
	}
	switch args[0] {
	case radio.KindChannel, radio.KindPower:
		if len(args) != 2 {
			return []string{fmt.Sprintf("Usage: %s <int:%s>", args[0], args[0])}
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return nil
		}
		if args[0] == radio.KindChannel {
			node.channel = v
		} else {
			node.power = v
		}
		ack(args[0])
	case radio.KindSend:
		if len(args) != 5 {
			return []string{"Usage: send <str:node_id> <int:pkt_size> <int:nb_pkt> <int:delay_ms>"}
		}
		nb, err := strconv.Atoi(args[3])
		if err != nil || nb < 1 {
			return []string{"Invalid number of packets"}
		}
		out = append(out, s.transmit(node, args[1], nb))
	case radio.KindShow:
		out = append(out, s.report(node))
		ack(radio.KindShow)
	case radio.KindClear:
		node.recv = nil
		node.errs = radio.ErrorCounters{}
		node.txNode = ""
		ack(radio.KindClear)
	default:
		out = append(out, "shell: command not found: "+args[0])
	}
	return out
}

// transmit emits nb packets from node to every other node on the same channel.
func (s *Simulated) transmit(node *simNode, txID string, nb int) string {
	send := make([]radio.SendPacket, nb)
	for i := range send {
		send[i] = radio.SendPacket{PktNum: i, PktSend: 1}
	}
	for _, name := range s.nodes {
		rx := s.state[name]
		if rx == node || rx.channel != node.channel {
			continue
		}
		rx.txNode = txID
		for i := 0; i < nb; i++ {
			if s.rng.Float64() < s.cfg.LossRate {
				if s.rng.Intn(4) == 0 {
					rx.errs.CRC++
				}
				continue
			}
			rssi, lqi := s.link(node, rx)
			rx.recv = append(rx.recv, radio.RecvPacket{PktNum: i, RSSI: rssi, LQI: lqi})
		}
	}
	return mustJSON(radio.Record{
		Channel: radio.Int(node.channel),
		Power:   radio.Int(node.power),
		NodeID:  txID,
		NbPkt:   radio.Int(nb),
		NbError: radio.Int(0),
		Send:    &radio.SendReport{Packets: send},
	})
}

// link returns RSSI (dBm) and LQI for a packet from tx to rx.
func (s *Simulated) link(tx, rx *simNode) (int, int) {
	dist := math.Abs(float64(tx.id-rx.id)) + 1
	rssi := float64(tx.power) - 40 - 20*math.Log10(dist) + s.rng.NormFloat64()*2
	lqi := 255 + (rssi+50)*4
	lqi = math.Max(0, math.Min(255, lqi))
	return int(math.Round(rssi)), int(lqi)
}

func (s *Simulated) report(node *simNode) string {
	recv := node.recv
	if recv == nil {
		recv = []radio.RecvPacket{}
	}
	rec := radio.Record{
		Channel:        radio.Int(node.channel),
		Power:          radio.Int(node.power),
		NodeID:         node.txNode,
		NbPkt:          radio.Int(len(recv)),
		NbGenericError: radio.Int(node.errs.Generic),
		NbMagicError:   radio.Int(node.errs.Magic),
		NbCRCError:     radio.Int(node.errs.CRC),
		NbControlError: radio.Int(node.errs.Control),
	}
	b, _ := json.Marshal(rec)
	// recv is omitted when empty by the record encoder; the firmware always prints it
	body, _ := json.Marshal(recv)
	return strings.TrimSuffix(string(b), "}") + `,"recv":` + string(body) + "}"
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Close stops delivering lines and waits for delayed ones.
func (s *Simulated) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.timers.Wait()
	return nil
}
