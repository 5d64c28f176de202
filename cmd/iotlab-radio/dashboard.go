package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"iotlab-radio/internal/dashboard"
	"iotlab-radio/internal/export"
)

var (
	dashboardOut   string
	dashboardTitle string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the exported tables",
	Long:  "dashboard renders the embedded Grafana dashboards. GREPTIMEDB_DATASOURCE_UID names the datasource.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dashboard.Render(dashboardOut, dashboard.Data{Title: dashboardTitle, Prefix: export.TablePrefix}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dashboards written to %s\n", dashboardOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashboardTitle, "title", "", "Dashboard title")
}
