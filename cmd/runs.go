package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/store"
)

var (
	runsLimit  int
	runsStatus string
	runsFormat string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted reconciliation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(runsStatus),
			Limit:  runsLimit,
		})
		if err != nil {
			return err
		}
		return printOutput(runs, runsFormat)
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (running, complete, partial, failed)")
	runsCmd.Flags().StringVar(&runsFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(runsCmd)
}
