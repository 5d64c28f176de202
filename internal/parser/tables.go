package parser

import (
	"fmt"
	"time"

	"iotlab-radio/internal/config"
	"iotlab-radio/internal/radio"
)

// Domain holds the index values of the dense tables, in config order.
type Domain struct {
	Channels []int
	Powers   []int
	Nodes    []int // numeric node ids
	NbPacket int

	channel map[int]int
	power   map[int]int
	node    map[int]int
}

// NewDomain derives the table domain from a campaign config.
func NewDomain(cfg config.CampaignConfig) (Domain, error) {
	if err := cfg.Validate(); err != nil {
		return Domain{}, err
	}
	ids, err := radio.NodeIDs(cfg.Nodes)
	if err != nil {
		return Domain{}, err
	}
	return Domain{
		Channels: append([]int(nil), cfg.Channels...),
		Powers:   append([]int(nil), cfg.Powers...),
		Nodes:    ids,
		NbPacket: cfg.NbPacket,
		channel:  positions(cfg.Channels),
		power:    positions(cfg.Powers),
		node:     positions(ids),
	}, nil
}

func positions(vals []int) map[int]int {
	m := make(map[int]int, len(vals))
	for i, v := range vals {
		m[v] = i
	}
	return m
}

// cell resolves (channel, power) to its position in the grid.
func (d Domain) cell(channel, power int) (int, bool) {
	c, ok := d.channel[channel]
	if !ok {
		return 0, false
	}
	p, ok := d.power[power]
	if !ok {
		return 0, false
	}
	return c*len(d.Powers) + p, true
}

// link resolves an (rx, tx) pair to its position among the links of the
// grid cell. Self-links have no position.
func (d Domain) link(rx, tx int) (int, bool) {
	r, ok := d.node[rx]
	if !ok {
		return 0, false
	}
	t, ok := d.node[tx]
	if !ok || r == t {
		return 0, false
	}
	if t > r {
		t--
	}
	return r*(len(d.Nodes)-1) + t, true
}

func (d Domain) cells() int { return len(d.Channels) * len(d.Powers) }
func (d Domain) links() int { return len(d.Nodes) * (len(d.Nodes) - 1) }

// Reception is the quality of one received packet.
type Reception struct {
	RSSI int `json:"rssi"`
	LQI  int `json:"lqi"`
}

// Tables are the dense recv, send and error tables of one campaign. Every
// cell of the domain exists and defaults to zero; self-links are excluded
// from recv and error.
type Tables struct {
	Domain
	RunID    string
	Captured time.Time
	Stats    Stats

	recv []Reception           // [cell][link][pkt]
	send []int                 // [cell][tx][pkt]
	errs []radio.ErrorCounters // [cell][link]
}

// Stats counts what Parse found on disk.
type Stats struct {
	Files       int `json:"files"`
	Missing     int `json:"missing"`
	Records     int `json:"records"`
	OutOfRange  int `json:"out_of_range"`
	UnknownLink int `json:"unknown_link"`
}

// NewTables allocates zeroed tables over d.
func NewTables(d Domain) *Tables {
	return &Tables{
		Domain: d,
		recv:   make([]Reception, d.cells()*d.links()*d.NbPacket),
		send:   make([]int, d.cells()*len(d.Nodes)*d.NbPacket),
		errs:   make([]radio.ErrorCounters, d.cells()*d.links()),
	}
}

func (t *Tables) recvIndex(channel, power, rx, tx, pkt int) (int, bool) {
	c, ok := t.cell(channel, power)
	if !ok || pkt < 0 || pkt >= t.NbPacket {
		return 0, false
	}
	l, ok := t.link(rx, tx)
	if !ok {
		return 0, false
	}
	return (c*t.links()+l)*t.NbPacket + pkt, true
}

func (t *Tables) sendIndex(channel, power, tx, pkt int) (int, bool) {
	c, ok := t.cell(channel, power)
	if !ok || pkt < 0 || pkt >= t.NbPacket {
		return 0, false
	}
	n, ok := t.node[tx]
	if !ok {
		return 0, false
	}
	return (c*len(t.Nodes)+n)*t.NbPacket + pkt, true
}

func (t *Tables) errorIndex(channel, power, rx, tx int) (int, bool) {
	c, ok := t.cell(channel, power)
	if !ok {
		return 0, false
	}
	l, ok := t.link(rx, tx)
	if !ok {
		return 0, false
	}
	return c*t.links() + l, true
}

// Recv returns recv[channel, power, rx, tx, pkt]. ok is false outside the
// domain, self-links included.
func (t *Tables) Recv(channel, power, rx, tx, pkt int) (Reception, bool) {
	i, ok := t.recvIndex(channel, power, rx, tx, pkt)
	if !ok {
		return Reception{}, false
	}
	return t.recv[i], true
}

// Send returns send[channel, power, tx, pkt].
func (t *Tables) Send(channel, power, tx, pkt int) (int, bool) {
	i, ok := t.sendIndex(channel, power, tx, pkt)
	if !ok {
		return 0, false
	}
	return t.send[i], true
}

// Error returns error[channel, power, rx, tx].
func (t *Tables) Error(channel, power, rx, tx int) (radio.ErrorCounters, bool) {
	i, ok := t.errorIndex(channel, power, rx, tx)
	if !ok {
		return radio.ErrorCounters{}, false
	}
	return t.errs[i], true
}

func (t *Tables) setRecv(channel, power, rx, tx, pkt int, v Reception) error {
	i, ok := t.recvIndex(channel, power, rx, tx, pkt)
	if !ok {
		return fmt.Errorf("recv[%d %d %d %d %d] outside the table", channel, power, rx, tx, pkt)
	}
	t.recv[i] = v
	return nil
}

func (t *Tables) setSend(channel, power, tx, pkt, v int) error {
	i, ok := t.sendIndex(channel, power, tx, pkt)
	if !ok {
		return fmt.Errorf("send[%d %d %d %d] outside the table", channel, power, tx, pkt)
	}
	t.send[i] = v
	return nil
}

func (t *Tables) setError(channel, power, rx, tx int, v radio.ErrorCounters) error {
	i, ok := t.errorIndex(channel, power, rx, tx)
	if !ok {
		return fmt.Errorf("error[%d %d %d %d] outside the table", channel, power, rx, tx)
	}
	t.errs[i] = v
	return nil
}

// Table is one dense table seen as rows of integers: index columns first,
// then value columns.
type Table interface {
	Name() string
	Index() []string
	Columns() []string
	Len() int
	Rows(fn func(row []int) error) error
}

// All returns the recv, send and error tables in that order.
func (t *Tables) All() []Table {
	return []Table{recvTable{t}, sendTable{t}, errorTable{t}}
}

type recvTable struct{ t *Tables }

func (recvTable) Name() string { return "recv" }
func (recvTable) Index() []string { return []string{"channel", "power", "rx_node", "tx_node", "pkt_num"} }
func (recvTable) Columns() []string { return []string{"rssi", "lqi"} }
func (r recvTable) Len() int { return len(r.t.recv) }

func (r recvTable) Rows(fn func([]int) error) error {
	t := r.t
	row := make([]int, 7)
	i := 0
	for _, ch := range t.Channels {
		for _, pw := range t.Powers {
			for _, rx := range t.Nodes {
				for _, tx := range t.Nodes {
					if rx == tx {
						continue
					}
					for pkt := 0; pkt < t.NbPacket; pkt++ {
						v := t.recv[i]
						row[0], row[1], row[2], row[3], row[4], row[5], row[6] = ch, pw, rx, tx, pkt, v.RSSI, v.LQI
						if err := fn(row); err != nil {
							return err
						}
						i++
					}
				}
			}
		}
	}
	return nil
}

type sendTable struct{ t *Tables }

func (sendTable) Name() string { return "send" }
func (sendTable) Index() []string { return []string{"channel", "power", "tx_node", "pkt_num"} }
func (sendTable) Columns() []string { return []string{"pkt_send"} }
func (s sendTable) Len() int { return len(s.t.send) }

func (s sendTable) Rows(fn func([]int) error) error {
	t := s.t
	row := make([]int, 5)
	i := 0
	for _, ch := range t.Channels {
		for _, pw := range t.Powers {
			for _, tx := range t.Nodes {
				for pkt := 0; pkt < t.NbPacket; pkt++ {
					row[0], row[1], row[2], row[3], row[4] = ch, pw, tx, pkt, t.send[i]
					if err := fn(row); err != nil {
						return err
					}
					i++
				}
			}
		}
	}
	return nil
}

type errorTable struct{ t *Tables }

func (errorTable) Name() string { return "error" }
func (errorTable) Index() []string { return []string{"channel", "power", "rx_node", "tx_node"} }
func (errorTable) Columns() []string {
	return []string{"generic", "magic_number", "crc", "control"}
}
func (e errorTable) Len() int { return len(e.t.errs) }

func (e errorTable) Rows(fn func([]int) error) error {
	t := e.t
	row := make([]int, 8)
	i := 0
	for _, ch := range t.Channels {
		for _, pw := range t.Powers {
			for _, rx := range t.Nodes {
				for _, tx := range t.Nodes {
					if rx == tx {
						continue
					}
					v := t.errs[i]
					row[0], row[1], row[2], row[3] = ch, pw, rx, tx
					row[4], row[5], row[6], row[7] = v.Generic, v.Magic, v.CRC, v.Control
					if err := fn(row); err != nil {
						return err
					}
					i++
				}
			}
		}
	}
	return nil
}
