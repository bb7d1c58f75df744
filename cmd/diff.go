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
	diffSourcePath string
	diffTargetPath string
	diffFormat     string
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare two expense collections without planning or writing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		source, err := ingest.Load(diffSourcePath, model.SideSource)
		if err != nil {
			return eris.Wrap(err, "load source")
		}
		target, err := ingest.Load(diffTargetPath, model.SideTarget)
		if err != nil {
			return eris.Wrap(err, "load target")
		}

		result := recon.Diff(source, target, matchConfig())

		zap.L().Info("diff complete",
			zap.Int("matched", len(result.Matched)),
			zap.Int("source_only", len(result.SourceOnly)),
			zap.Int("target_only", len(result.TargetOnly)),
			zap.Float64("match_rate", result.MatchRate),
		)
		return printOutput(result, diffFormat)
	},
}

func init() {
	diffCmd.Flags().StringVar(&diffSourcePath, "source", "", "path to source expenses (.json, .csv, or .xlsx, required)")
	diffCmd.Flags().StringVar(&diffTargetPath, "target", "", "path to target expenses (.json, .csv, or .xlsx, required)")
	diffCmd.Flags().StringVar(&diffFormat, "format", "json", "output format: json or yaml")
	_ = diffCmd.MarkFlagRequired("source")
	_ = diffCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(diffCmd)
}
