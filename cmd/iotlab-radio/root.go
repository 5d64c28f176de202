package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"iotlab-radio/internal/logging"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "iotlab-radio",
	Short: "IoT-LAB radio characterization toolkit",
	Long: "iotlab-radio sweeps channels and transmit powers on a set of testbed nodes, " +
		"records per-packet reception quality and reshapes the logs into analysis tables.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("log-level") {
			if env := os.Getenv("RADIO_LOG_LEVEL"); env != "" {
				logLevel = env
			}
		}
		logger, err := logging.NewWithOptions(os.Stderr, logLevel, logFormat)
		if err != nil {
			return err
		}
		cmd.SetContext(logging.NewContext(cmd.Context(), logger))
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error); RADIO_LOG_LEVEL when unset")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}
