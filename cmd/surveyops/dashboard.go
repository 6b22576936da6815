package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"surveyops/internal/dashboard"
)

var (
	dashOutDir string
	dashUID    string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the progress table",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := dashboard.Render(dashOutDir, dashboard.Options{
			DatasourceUID: dashUID,
			Table:         appConfig.Greptime.Table,
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashOutDir, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashUID, "datasource-uid", "", "Grafana GreptimeDB datasource UID (defaults to GREPTIMEDB_DATASOURCE_UID)")
}
