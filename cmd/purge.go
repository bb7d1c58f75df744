package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired idempotency records from the store",
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

		deleted, err := st.DeleteExpiredIdempotency(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("purge complete", zap.Int("deleted", deleted))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
