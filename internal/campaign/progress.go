package campaign

import (
	"log/slog"
	"sync"
	"time"
)

// Step identifies one (channel, power, transmitter) cell of the sweep.
type Step struct {
	Channel int    `json:"channel"`
	Power   int    `json:"power"`
	Node    string `json:"node"`
	Index   int    `json:"index"` // 1-based
	Total   int    `json:"total"`
}

// Summary describes how a campaign ended.
type Summary struct {
	RunID       string        `json:"run_id"`
	Dir         string        `json:"dir"`
	Interrupted bool          `json:"interrupted"`
	CellsDone   int           `json:"cells_done"`
	NodeLogs    int           `json:"node_logs"`
	Timeouts    int           `json:"timeouts"`
	Duration    time.Duration `json:"duration"`
	Err         string        `json:"error,omitempty"`
}

// Observer receives campaign progress. Implementations must not block.
type Observer interface {
	StepStarted(Step)
	AckTimeout(command string, missing []string)
	Finished(Summary)
}

// Observers fans progress out to several observers.
type Observers []Observer

func (obs Observers) StepStarted(s Step) {
	for _, o := range obs {
		o.StepStarted(s)
	}
}

func (obs Observers) AckTimeout(command string, missing []string) {
	for _, o := range obs {
		o.AckTimeout(command, missing)
	}
}

func (obs Observers) Finished(s Summary) {
	for _, o := range obs {
		o.Finished(s)
	}
}

// Status is a point-in-time view of a running campaign.
type Status struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"` // running, done, interrupted, failed
	Step      Step      `json:"step"`
	Timeouts  int       `json:"timeouts"`
	LastMiss  []string  `json:"last_missing,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Summary   *Summary  `json:"summary,omitempty"`
}

// Tracker is an Observer that keeps the latest Status and notifies subscribers.
type Tracker struct {
	mu     sync.Mutex
	status Status
	subs   map[chan Status]struct{}
}

// NewTracker creates a tracker for runID.
func NewTracker(runID string) *Tracker {
	return &Tracker{
		status: Status{RunID: runID, State: "running", StartedAt: time.Now().UTC()},
		subs:   make(map[chan Status]struct{}),
	}
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Subscribe returns a channel receiving every status change and a cancel func.
// Slow subscribers miss intermediate updates.
func (t *Tracker) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 8)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()
	return ch, func() {
		t.mu.Lock()
		if _, ok := t.subs[ch]; ok {
			delete(t.subs, ch)
			close(ch)
		}
		t.mu.Unlock()
	}
}

func (t *Tracker) update(fn func(*Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.status)
	for ch := range t.subs {
		select {
		case ch <- t.status:
		default:
		}
	}
}

func (t *Tracker) StepStarted(s Step) {
	t.update(func(st *Status) { st.Step = s })
}

func (t *Tracker) AckTimeout(_ string, missing []string) {
	t.update(func(st *Status) {
		st.Timeouts++
		st.LastMiss = missing
	})
}

func (t *Tracker) Finished(s Summary) {
	t.update(func(st *Status) {
		switch {
		case s.Err != "":
			st.State = "failed"
		case s.Interrupted:
			st.State = "interrupted"
		default:
			st.State = "done"
		}
		st.Summary = &s
	})
}

// LogObserver reports progress through a logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) StepStarted(s Step) {
	l.Logger.Info("radio step", "channel", s.Channel, "power", s.Power, "node", s.Node,
		"step", s.Index, "steps", s.Total)
}

func (l LogObserver) AckTimeout(command string, missing []string) {
	l.Logger.Debug("step continues without nodes", "command", command, "missing", missing)
}

func (l LogObserver) Finished(s Summary) {
	l.Logger.Info("campaign finished", "run_id", s.RunID, "dir", s.Dir, "interrupted", s.Interrupted,
		"cells_done", s.CellsDone, "node_logs", s.NodeLogs, "timeouts", s.Timeouts, "duration", s.Duration)
}
