package campaign

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments of one campaign process.
type Metrics struct {
	lines       *prometheus.CounterVec
	acks        *prometheus.CounterVec
	ackTimeouts *prometheus.CounterVec
	missingAcks *prometheus.CounterVec
	waitSeconds *prometheus.HistogramVec
	records     *prometheus.CounterVec
	cellsDone   prometheus.Counter
	cellsTotal  prometheus.Gauge
}

// NewMetrics registers the campaign metrics on reg. A nil reg uses a private
// registry, which keeps tests independent of the global one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		lines: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radio_node_lines_total",
				Help: "Lines received from nodes, by classification",
			},
			[]string{"kind"},
		),
		acks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radio_acks_total",
				Help: "Command acknowledgments received, by command kind",
			},
			[]string{"command"},
		),
		ackTimeouts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radio_ack_timeouts_total",
				Help: "Synchronization steps that timed out with missing nodes",
			},
			[]string{"command"},
		),
		missingAcks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radio_missing_acks_total",
				Help: "Nodes that did not acknowledge before the timeout",
			},
			[]string{"command"},
		),
		waitSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "radio_ack_wait_seconds",
				Help:    "Time spent waiting for acknowledgments",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
			},
			[]string{"command"},
		),
		records: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radio_stored_records_total",
				Help: "Node reports appended to the log store",
			},
			[]string{"kind"},
		),
		cellsDone: f.NewCounter(prometheus.CounterOpts{
			Name: "radio_sweep_cells_done_total",
			Help: "Completed (channel, power, node) steps",
		}),
		cellsTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "radio_sweep_cells",
			Help: "Number of (channel, power, node) steps in the current sweep",
		}),
	}
}
