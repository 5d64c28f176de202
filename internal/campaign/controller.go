// Controller driving the channel x power x node sweep
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"iotlab-radio/internal/config"
	"iotlab-radio/internal/logging"
	"iotlab-radio/internal/radio"
)

// Link is the node control link the controller issues commands on.
type Link interface {
	Broadcast(ctx context.Context, text string) error
	Send(ctx context.Context, nodes []string, text string) error
}

// Options carries the optional collaborators of a Controller.
type Options struct {
	RunID     string
	Persister *Persister
	Observer  Observer
	Metrics   *Metrics
	Logger    *slog.Logger

	// AckTimeout and SendTimeout override the durations derived from the
	// config when non-zero.
	AckTimeout  time.Duration
	SendTimeout time.Duration
}

// Controller runs one campaign: it sweeps the grid, then persists whatever
// the log store holds.
type Controller struct {
	cfg       config.CampaignConfig
	runID     string
	link      Link
	acks      *Synchronizer
	store     *LogStore
	persister *Persister
	observer  Observer
	metrics   *Metrics
	logger    *slog.Logger
	timeouts  int

	ackTimeout  time.Duration
	sendTimeout time.Duration
}

// NewController validates cfg and wires the run state.
func NewController(cfg config.CampaignConfig, link Link, acks *Synchronizer, store *LogStore, opts Options) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if link == nil || acks == nil || store == nil {
		return nil, fmt.Errorf("controller needs a link, a synchronizer and a log store")
	}
	c := &Controller{
		cfg:       cfg,
		runID:     opts.RunID,
		link:      link,
		acks:      acks,
		store:     store,
		persister: opts.Persister,
		observer:  opts.Observer,
		metrics:   opts.Metrics,
		logger:    opts.Logger,

		ackTimeout:  opts.AckTimeout,
		sendTimeout: opts.SendTimeout,
	}
	if c.ackTimeout <= 0 {
		c.ackTimeout = cfg.Timeout()
	}
	if c.sendTimeout <= 0 {
		c.sendTimeout = cfg.SendTimeout()
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.persister == nil {
		c.persister = NewPersister(DefaultLogRoot, c.logger)
	}
	if c.observer == nil {
		c.observer = Observers(nil)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c, nil
}

// Run sweeps the grid until done or ctx is cancelled, then persists the
// collected logs. Cancellation is not an error; only a persistence failure is.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	total := c.cfg.Cells()
	c.metrics.cellsTotal.Set(float64(total))
	c.logger.Info("running radio logger",
		"run_id", c.runID, "channels", len(c.cfg.Channels), "powers", len(c.cfg.Powers),
		"nodes", len(c.cfg.Nodes), "cells", total)

	done, err := c.sweep(ctx)
	sum := Summary{RunID: c.runID, CellsDone: done, Timeouts: c.timeouts}
	if err != nil {
		sum.Interrupted = true
		c.logger.Warn("interrupted by user", "cells_done", done, "cells", total, "reason", err)
	}

	c.logger.Info("saving radio logs", "node_logs", c.store.Len())
	dir, perr := c.persister.Persist(c.runID, c.cfg, c.cfg.Nodes, c.store)
	sum.Dir = dir
	sum.NodeLogs = c.store.Len()
	sum.Duration = time.Since(start)
	if perr != nil {
		sum.Err = perr.Error()
		c.logger.Error("saving radio logs failed", "dir", dir, "err", perr)
	}
	c.observer.Finished(sum)
	return sum, perr
}

// sweep returns the number of completed cells and a non-nil error only when
// ctx was cancelled.
func (c *Controller) sweep(ctx context.Context) (int, error) {
	done := 0
	total := c.cfg.Cells()
	for _, channel := range c.cfg.Channels {
		if err := c.broadcastAndWait(ctx, radio.KindChannel, radio.ChannelCommand(channel)); err != nil {
			return done, err
		}
		for _, power := range c.cfg.Powers {
			if err := c.broadcastAndWait(ctx, radio.KindPower, radio.PowerCommand(power)); err != nil {
				return done, err
			}
			for _, node := range c.cfg.Nodes {
				c.observer.StepStarted(Step{Channel: channel, Power: power, Node: node, Index: done + 1, Total: total})
				if err := c.exchange(ctx, node); err != nil {
					return done, err
				}
				done++
				c.metrics.cellsDone.Inc()
			}
		}
	}
	return done, nil
}

// exchange lets one node transmit its burst, then fences every node with show
// and clear so that the next transmitter starts from empty counters.
func (c *Controller) exchange(ctx context.Context, node string) error {
	id, err := radio.NodeID(node)
	if err != nil {
		return err
	}
	cmd := radio.SendCommand(id, c.cfg.PacketSize, c.cfg.NbPacket, c.cfg.DelayMs)
	if err := c.link.Send(ctx, []string{node}, cmd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("send command failed", "node", node, "err", err)
	}
	// send is not acknowledged by every node: wait for the burst to finish
	if _, err := c.acks.Wait(ctx, radio.KindSend, c.sendTimeout, nil); err != nil {
		return err
	}
	if err := c.broadcastAndWait(ctx, radio.KindShow, radio.ShowCommand()); err != nil {
		return err
	}
	return c.broadcastAndWait(ctx, radio.KindClear, radio.ClearCommand())
}

func (c *Controller) broadcastAndWait(ctx context.Context, kind, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.link.Broadcast(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("broadcast failed", "command", kind, "err", err)
	}
	missing, err := c.acks.Wait(ctx, kind, c.ackTimeout, c.cfg.Nodes)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		c.timeouts++
		c.observer.AckTimeout(kind, missing)
	}
	return nil
}
