package campaign

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"iotlab-radio/internal/logging"
	"iotlab-radio/internal/radio"
)

// DefaultPollStep is the interval at which Wait rechecks the ack sets.
const DefaultPollStep = time.Second

// Synchronizer records which nodes acknowledged each command kind and lets
// the control loop wait for a full set.
type Synchronizer struct {
	mu      sync.Mutex
	acks    map[string]map[int]struct{}
	step    time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

// NewSynchronizer creates a Synchronizer polling every step.
func NewSynchronizer(step time.Duration, logger *slog.Logger, metrics *Metrics) *Synchronizer {
	if step <= 0 {
		step = DefaultPollStep
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Synchronizer{
		acks:    make(map[string]map[int]struct{}),
		step:    step,
		logger:  logger,
		metrics: metrics,
	}
}

// Ack records that node acknowledged kind. It never blocks beyond the state lock.
func (s *Synchronizer) Ack(kind string, node int) {
	s.mu.Lock()
	set, ok := s.acks[kind]
	if !ok {
		set = make(map[int]struct{})
		s.acks[kind] = set
	}
	set[node] = struct{}{}
	s.mu.Unlock()
	s.metrics.acks.WithLabelValues(kind).Inc()
}

// Acked returns the sorted node ids that acknowledged kind since the last reset.
func (s *Synchronizer) Acked(kind string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.acks[kind]))
	for id := range s.acks[kind] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (s *Synchronizer) reset(kind string) {
	s.mu.Lock()
	delete(s.acks, kind)
	s.mu.Unlock()
}

// missing returns the expected identifiers whose id is absent from the ack set of kind.
func (s *Synchronizer) missing(kind string, expected []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.acks[kind]
	var out []string
	for _, name := range expected {
		id, err := radio.NodeID(name)
		if err != nil {
			out = append(out, name)
			continue
		}
		if _, ok := set[id]; !ok {
			out = append(out, name)
		}
	}
	return out
}

// Wait blocks until every node of expected acknowledged kind or timeout
// elapses, checking every poll step. With no expected nodes it sleeps for the
// whole timeout. It returns the nodes still missing at the timeout; a timeout
// is reported but is not an error. The ack set of kind is empty when Wait
// returns, whatever the outcome. Only a cancelled ctx yields an error.
func (s *Synchronizer) Wait(ctx context.Context, kind string, timeout time.Duration, expected []string) ([]string, error) {
	start := time.Now()
	defer func() {
		s.reset(kind)
		s.metrics.waitSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if len(expected) > 0 && len(s.missing(kind, expected)) == 0 {
				return nil, nil
			}
		case <-deadline.C:
			if len(expected) == 0 {
				return nil, nil
			}
			missing := s.missing(kind, expected)
			if len(missing) > 0 {
				s.logger.Warn("ack timeout reached", "command", kind, "timeout", timeout, "missing", missing)
				s.metrics.ackTimeouts.WithLabelValues(kind).Inc()
				s.metrics.missingAcks.WithLabelValues(kind).Add(float64(len(missing)))
			}
			return missing, nil
		}
	}
}
