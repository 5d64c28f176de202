package campaign

import (
	"log/slog"
	"sync"

	"iotlab-radio/internal/logging"
	"iotlab-radio/internal/radio"
)

// Classifier turns node lines into ack or log store updates. It is the line
// handler given to the node link; calls are serialized so that each line is
// applied as a whole before the next one.
type Classifier struct {
	mu      sync.Mutex
	acks    *Synchronizer
	store   *LogStore
	metrics *Metrics
	logger  *slog.Logger
}

// NewClassifier wires a classifier to the state of one campaign run.
func NewClassifier(acks *Synchronizer, store *LogStore, metrics *Metrics, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Classifier{acks: acks, store: store, metrics: metrics, logger: logger}
}

// HandleLine is the node link line handler.
func (c *Classifier) HandleLine(identifier, line string) {
	c.Classify(identifier, line)
}

// Classify applies one line and returns how it was classified.
func (c *Classifier) Classify(identifier, line string) radio.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev, err := radio.Classify(identifier, line)
	if err != nil {
		c.logger.Warn("line from unknown node", "identifier", identifier, "err", err)
		return ev
	}
	c.metrics.lines.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case radio.EventDebug:
		c.logger.Debug("node output", "node", ev.Node, "line", line)
	case radio.EventAck:
		c.acks.Ack(ev.Ack, ev.NodeID)
	case radio.EventRecv, radio.EventSend:
		c.store.Append(ev.Channel, ev.Power, ev.NodeID, ev.Node, ev.Record)
		c.metrics.records.WithLabelValues(ev.Kind.String()).Inc()
	case radio.EventEmptyRecv:
		// nothing received: leave the cell absent
	case radio.EventIncomplete:
		c.logger.Warn("record without channel or power", "node", ev.Node, "line", line)
	}
	return ev
}
