package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sampling and evaluation loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Record one price sample per supported chain and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SampleOnce(cmd.Context())
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate every registered alert once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().EvaluateOnce(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}
