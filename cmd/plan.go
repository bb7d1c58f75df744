package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/ingest"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/recon"
)

var (
	planSourcePath   string
	planTargetPath   string
	planExistingPath string
	planFormat       string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the reconciliation plan without side effects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		source, err := ingest.Load(planSourcePath, model.SideSource)
		if err != nil {
			return eris.Wrap(err, "load source")
		}
		target, err := ingest.Load(planTargetPath, model.SideTarget)
		if err != nil {
			return eris.Wrap(err, "load target")
		}

		// Duplicate suppression runs against the complete target collection,
		// which defaults to the diff's target input.
		existing := target
		if planExistingPath != "" {
			existing, err = ingest.Load(planExistingPath, model.SideTarget)
			if err != nil {
				return eris.Wrap(err, "load existing target records")
			}
		}

		diff := recon.Diff(source, target, matchConfig())
		plan := recon.Plan(diff, existing, planConfig())

		zap.L().Info("plan complete",
			zap.Int("approved_for_target", plan.Summary.ApprovedForTarget),
			zap.Int("approved_for_source", plan.Summary.ApprovedForSource),
			zap.Int("ignored", plan.Summary.Ignored),
			zap.Int("rejected", plan.Summary.Rejected),
		)
		return printOutput(plan, planFormat)
	},
}

func init() {
	planCmd.Flags().StringVar(&planSourcePath, "source", "", "path to source expenses (required)")
	planCmd.Flags().StringVar(&planTargetPath, "target", "", "path to target expenses (required)")
	planCmd.Flags().StringVar(&planExistingPath, "existing", "", "path to the full current target collection (defaults to --target)")
	planCmd.Flags().StringVar(&planFormat, "format", "json", "output format: json or yaml")
	_ = planCmd.MarkFlagRequired("source")
	_ = planCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(planCmd)
}
