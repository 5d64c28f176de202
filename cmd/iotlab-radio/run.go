package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"iotlab-radio/internal/admin"
	"iotlab-radio/internal/campaign"
	"iotlab-radio/internal/config"
	"iotlab-radio/internal/logging"
	"iotlab-radio/internal/nodelink"
	"iotlab-radio/internal/tui"
)

// runOptions are the settings of one campaign run.
type runOptions struct {
	campaignFlags
	link      linkFlags
	record    string
	adminAddr string
	tui       bool
	pollStep  time.Duration
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a radio characterization campaign",
	Long: "run sweeps every channel and transmit power: for each pair, every node in turn sends " +
		"a burst of packets while the others listen, then all nodes report what they received. " +
		"Logs are saved under <log-root>/<exp-id>/<timestamp>/, also on interrupt.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := runOpts.build(cmd.Flags().Changed)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		useTUI := runOpts.tui
		if useTUI && !term.IsTerminal(int(os.Stdout.Fd())) {
			logging.FromContext(ctx).Warn("stdout is not a terminal, progress view disabled")
			useTUI = false
		}
		sum, err := runCampaign(ctx, cfg, runOpts, useTUI)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "radio logs saved in %s\n", sum.Dir)
		return nil
	},
}

func init() {
	runOpts.campaignFlags.register(runCmd)
	runOpts.link.register(runCmd)
	fs := runCmd.Flags()
	fs.StringVar(&runOpts.record, "record", "", "Capture every raw node line to this JSONL file (.zst to compress)")
	fs.StringVar(&runOpts.adminAddr, "admin-addr", "", "Serve /status, /metrics and /ws on this address (e.g. :8080)")
	fs.BoolVar(&runOpts.tui, "tui", false, "Show a terminal progress view")
	fs.DurationVar(&runOpts.pollStep, "poll-step", campaign.DefaultPollStep, "Interval between ack checks")
}

// runCampaign wires the link, the run state and the observers, then runs the
// sweep until it completes or ctx is cancelled.
func runCampaign(ctx context.Context, cfg config.CampaignConfig, opts runOptions, useTUI bool) (campaign.Summary, error) {
	logger := logging.FromContext(ctx)
	runID := resolveRunID(opts.expID)

	tracker := campaign.NewTracker(runID)
	observers := campaign.Observers{tracker}
	if useTUI {
		view := tui.New(runID, cfg)
		defer view.Close()
		l, err := logging.NewWithOptions(view, logLevel, logFormat)
		if err != nil {
			return campaign.Summary{}, err
		}
		logger = l
		observers = append(observers, view)
	} else {
		observers = append(observers, campaign.LogObserver{Logger: logger})
	}
	ctx = logging.NewContext(ctx, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := campaign.NewMetrics(reg)

	acks := campaign.NewSynchronizer(opts.pollStep, logger, metrics)
	store := campaign.NewLogStore()
	classifier := campaign.NewClassifier(acks, store, metrics, logger)

	handler := nodelink.LineHandler(classifier.HandleLine)
	if opts.record != "" {
		rec, err := nodelink.NewRecorder(opts.record, handler)
		if err != nil {
			return campaign.Summary{}, fmt.Errorf("open capture: %w", err)
		}
		if err := rec.WriteHeader(cfg); err != nil {
			rec.Close()
			return campaign.Summary{}, fmt.Errorf("write capture header: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Error("closing capture failed", "path", opts.record, "err", err)
			}
		}()
		handler = rec.Handle
	}

	link, err := opts.link.open(ctx, cfg.Nodes, handler, logger)
	if err != nil {
		return campaign.Summary{}, err
	}
	defer link.Close()

	if opts.adminAddr != "" {
		adminCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		srv := admin.NewServer(tracker, reg, logger)
		go func() {
			if err := srv.Start(adminCtx, opts.adminAddr); err != nil {
				logger.Error("admin server failed", "err", err)
			}
		}()
	}

	ctrl, err := campaign.NewController(cfg, link, acks, store, campaign.Options{
		RunID:     runID,
		Persister: campaign.NewPersister(opts.logRoot, logger),
		Observer:  observers,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return campaign.Summary{}, err
	}
	return ctrl.Run(ctx)
}
