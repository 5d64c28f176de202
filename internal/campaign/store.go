package campaign

import (
	"sort"
	"sync"

	"iotlab-radio/internal/radio"
)

// NodeLog is every report one node printed for one (channel, power) pair.
type NodeLog struct {
	Logs []radio.Record `json:"logs"`
	Node string         `json:"node"`
}

// LogStore maps channel -> power -> node id -> NodeLog. Missing levels are
// created by entry; lookups never create anything.
type LogStore struct {
	mu    sync.Mutex
	cells map[int]map[int]map[int]*NodeLog
	count int
}

// NewLogStore returns an empty store.
func NewLogStore() *LogStore {
	return &LogStore{cells: make(map[int]map[int]map[int]*NodeLog)}
}

// entry returns the NodeLog of a triple, creating it and its parents if absent.
// Callers hold s.mu.
func (s *LogStore) entry(channel, power, node int, name string) *NodeLog {
	powers, ok := s.cells[channel]
	if !ok {
		powers = make(map[int]map[int]*NodeLog)
		s.cells[channel] = powers
	}
	nodes, ok := powers[power]
	if !ok {
		nodes = make(map[int]*NodeLog)
		powers[power] = nodes
	}
	log, ok := nodes[node]
	if !ok {
		log = &NodeLog{Logs: []radio.Record{}, Node: name}
		nodes[node] = log
		s.count++
	}
	return log
}

// Append adds rec to the NodeLog of (channel, power, node).
func (s *LogStore) Append(channel, power, node int, name string, rec radio.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.entry(channel, power, node, name)
	log.Logs = append(log.Logs, rec)
}

// Lookup returns a copy of the NodeLog of a triple.
func (s *LogStore) Lookup(channel, power, node int) (NodeLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.cells[channel][power][node]
	if !ok {
		return NodeLog{}, false
	}
	return copyLog(log), true
}

// Len returns the number of NodeLogs held.
func (s *LogStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Each calls fn for every NodeLog in ascending (channel, power, node) order,
// on a snapshot taken under the lock.
func (s *LogStore) Each(fn func(channel, power, node int, log NodeLog) error) error {
	type item struct {
		ch, pw, node int
		log          NodeLog
	}
	s.mu.Lock()
	items := make([]item, 0, s.count)
	for ch, powers := range s.cells {
		for pw, nodes := range powers {
			for node, log := range nodes {
				items = append(items, item{ch, pw, node, copyLog(log)})
			}
		}
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ch != b.ch {
			return a.ch < b.ch
		}
		if a.pw != b.pw {
			return a.pw < b.pw
		}
		return a.node < b.node
	})
	for _, it := range items {
		if err := fn(it.ch, it.pw, it.node, it.log); err != nil {
			return err
		}
	}
	return nil
}

func copyLog(l *NodeLog) NodeLog {
	logs := make([]radio.Record, len(l.Logs))
	copy(logs, l.Logs)
	return NodeLog{Logs: logs, Node: l.Node}
}
