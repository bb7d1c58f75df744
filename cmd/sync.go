package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/recon-cli/internal/ingest"
	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/recon"
	"github.com/sells-group/recon-cli/internal/resilience"
	"github.com/sells-group/recon-cli/internal/store"
	"github.com/sells-group/recon-cli/pkg/ledger"
)

var (
	syncSourcePath string
	syncTargetPath string
	syncIdentity   string
	syncDryRun     bool
	syncFormat     string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile a source expense file against the application of record and apply the plan",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		ledgerClient, err := initLedger()
		if err != nil {
			return err
		}

		// Store-backed idempotency cache: cached write results survive
		// process restarts, so re-running a failed sync stays safe.
		caller := newCaller(store.NewIdempotencyStore(st))

		// Load the source document and the current target collection
		// concurrently. The target side doubles as the duplicate-check set.
		var source, target []model.Expense
		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			source, err = ingest.Load(syncSourcePath, model.SideSource)
			return eris.Wrap(err, "load source")
		})
		g.Go(func() error {
			var err error
			if syncTargetPath != "" {
				target, err = ingest.Load(syncTargetPath, model.SideTarget)
				return eris.Wrap(err, "load target")
			}
			target, err = fetchTarget(gCtx, caller, ledgerClient)
			return eris.Wrap(err, "fetch target records")
		})
		if err := g.Wait(); err != nil {
			return err
		}

		diff := recon.Diff(source, target, matchConfig())
		plan := recon.Plan(diff, target, planConfig())

		zap.L().Info("plan ready",
			zap.Int("approved_for_target", plan.Summary.ApprovedForTarget),
			zap.Int("rejected", plan.Summary.Rejected),
			zap.Int("ignored", plan.Summary.Ignored),
		)

		if syncDryRun {
			return printOutput(plan, syncFormat)
		}
		if len(plan.AddToTarget) == 0 {
			zap.L().Info("nothing to sync")
			return printOutput(plan, syncFormat)
		}

		run, err := st.CreateRun(ctx, plan.Mode, syncIdentity, plan.Summary)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		executor := recon.NewExecutor(createFunc(ledgerClient), caller, recon.ExecConfig{
			InterActionDelay: time.Duration(cfg.Sync.InterActionDelayMs) * time.Millisecond,
		})

		summary, execErr := executor.Execute(ctx, plan.AddToTarget, syncIdentity)
		if summary != nil {
			if err := st.SaveOutcomes(ctx, run.ID, summary.Outcomes); err != nil {
				zap.L().Error("save outcomes failed", zap.Error(err))
			}
			if err := st.CompleteRun(ctx, run.ID, runStatus(summary, execErr), summary); err != nil {
				zap.L().Error("complete run failed", zap.Error(err))
			}
			if err := printOutput(summary, syncFormat); err != nil {
				return err
			}
		}
		return execErr
	},
}

// fetchTarget pulls the current expense collection from the application of
// record through the resilient wrapper (read path: timeout+retry only).
func fetchTarget(ctx context.Context, caller *resilience.Caller, client ledger.Client) ([]model.Expense, error) {
	records, err := resilience.CallRead(ctx, caller, "expense.list", func(ctx context.Context) ([]ledger.Expense, error) {
		return client.List(ctx)
	})
	if err != nil {
		return nil, err
	}
	return toModelExpenses(records), nil
}

// toModelExpenses converts ledger wire records into raw expenses tagged as
// target-side.
func toModelExpenses(records []ledger.Expense) []model.Expense {
	expenses := make([]model.Expense, 0, len(records))
	for _, r := range records {
		expenses = append(expenses, model.Expense{
			Amount:      r.Amount,
			Description: r.Description,
			Date:        r.Date,
			Category:    r.Category,
			ExternalID:  r.ID,
			Side:        model.SideTarget,
		})
	}
	return expenses
}

// createFunc adapts the ledger client into the executor's injected
// record-creation operation.
func createFunc(client ledger.Client) recon.CreateFunc {
	return func(ctx context.Context, exp model.NormalizedExpense, identity string) (*model.Record, error) {
		record, err := client.Create(ctx, ledger.ExpenseInput{
			Amount:      exp.Amount,
			Date:        exp.Date,
			Category:    exp.Category,
			Description: exp.Description,
		}, identity)
		if err != nil {
			return nil, err
		}
		return &model.Record{ID: record.ID, Status: record.Status}, nil
	}
}

// runStatus maps an execution outcome onto the persisted run status.
func runStatus(summary *model.SyncSummary, execErr error) model.RunStatus {
	switch {
	case execErr != nil:
		return model.RunStatusFailed
	case summary.Failed > 0 || summary.Skipped > 0:
		return model.RunStatusPartial
	default:
		return model.RunStatusComplete
	}
}

func init() {
	syncCmd.Flags().StringVar(&syncSourcePath, "source", "", "path to source expenses (.json, .csv, or .xlsx, required)")
	syncCmd.Flags().StringVar(&syncTargetPath, "target", "", "optional path to target expenses; overrides the ledger fetch")
	syncCmd.Flags().StringVar(&syncIdentity, "identity", "", "caller identity for idempotency keying (required)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "plan only, apply nothing")
	syncCmd.Flags().StringVar(&syncFormat, "format", "json", "output format: json or yaml")
	_ = syncCmd.MarkFlagRequired("source")
	_ = syncCmd.MarkFlagRequired("identity")
	rootCmd.AddCommand(syncCmd)
}
