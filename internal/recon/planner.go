package recon

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/recon-cli/internal/model"
)

// duplicateAmountTolerance is the amount window for treating a source record
// as a duplicate of an existing target record.
const duplicateAmountTolerance = 0.01

// PlanConfig holds the planner's validation and normalization rules.
type PlanConfig struct {
	// MinAmount is the smallest amount approved for auto-sync. Default: 1.00.
	MinAmount float64

	// MaxAutoSync is the largest amount approved without manual review.
	// Default: 10000.00.
	MaxAutoSync float64

	// DefaultCategory is the fallback bucket for uncategorized expenses.
	// Default: "Uncategorized".
	DefaultCategory string

	// RequireDate rejects source records without a parseable date.
	// Default: false.
	RequireDate bool

	// DuplicateCheck suppresses source records that already exist in the
	// target collection. Default: true.
	DuplicateCheck bool
}

// DefaultPlanConfig returns the standard planning rules.
func DefaultPlanConfig() PlanConfig {
	return PlanConfig{
		MinAmount:       1.00,
		MaxAutoSync:     10000.00,
		DefaultCategory: "Uncategorized",
		DuplicateCheck:  true,
	}
}

// PlanMode tags how a plan was produced.
const PlanMode = "bidirectional"

// Plan turns a diff into an additive-only, auditable action plan. It is a
// pure function of its inputs: no writes happen here, so the result is safe
// to use as a dry-run preview. Duplicate suppression runs against the full
// existing target collection, not the diff's target-only slice.
func Plan(diff model.DiffResult, existingTarget []model.Expense, cfg PlanConfig) model.ReconciliationPlan {
	if cfg.DefaultCategory == "" {
		cfg.DefaultCategory = "Uncategorized"
	}

	plan := model.ReconciliationPlan{
		CreatedAt: time.Now().UTC(),
		Mode:      PlanMode,
	}

	for _, src := range diff.SourceOnly {
		if reason := validate(src, cfg); reason != "" {
			plan.Rejected = append(plan.Rejected, model.Rejection{
				Expense: src,
				Side:    model.SideTarget,
				Stage:   model.RejectStageValidation,
				Reason:  reason,
			})
			continue
		}

		if cfg.DuplicateCheck && isDuplicate(src, existingTarget) {
			plan.Rejected = append(plan.Rejected, model.Rejection{
				Expense: src,
				Side:    model.SideTarget,
				Stage:   model.RejectStageDuplicate,
				Reason:  "existing target record has the same amount and description",
			})
			plan.Summary.Duplicates++
			continue
		}

		plan.AddToTarget = append(plan.AddToTarget, model.TargetAction{
			Expense: normalize(src, cfg),
			Source:  src,
		})
	}

	// Target-only records pass through unvalidated: the application of
	// record already enforces its own invariants.
	plan.AddToSource = append(plan.AddToSource, diff.TargetOnly...)

	for _, pair := range diff.Matched {
		plan.Ignored = append(plan.Ignored, model.IgnoredPair{
			Pair:   pair,
			Reason: "already synchronized",
		})
	}

	plan.Summary.ApprovedForTarget = len(plan.AddToTarget)
	plan.Summary.ApprovedForSource = len(plan.AddToSource)
	plan.Summary.Ignored = len(plan.Ignored)
	plan.Summary.Rejected = len(plan.Rejected)
	return plan
}

// validate returns a rejection reason, or "" when the record is approvable.
func validate(e model.Expense, cfg PlanConfig) string {
	if e.Amount <= 0 {
		return "amount must be positive"
	}
	if e.Amount < cfg.MinAmount {
		return fmt.Sprintf("amount %.2f is below the minimum threshold %.2f", e.Amount, cfg.MinAmount)
	}
	if e.Amount > cfg.MaxAutoSync {
		return fmt.Sprintf("amount %.2f exceeds the auto-sync limit %.2f", e.Amount, cfg.MaxAutoSync)
	}
	if strings.TrimSpace(e.Description) == "" {
		return "description is empty"
	}
	if cfg.RequireDate {
		if _, err := CanonicalDate(e.Date); err != nil {
			return fmt.Sprintf("date %q is missing or unparseable", e.Date)
		}
	}
	return ""
}

// isDuplicate reports whether an existing target record matches e by amount
// (within tolerance) and case-insensitive description.
func isDuplicate(e model.Expense, existing []model.Expense) bool {
	desc := foldCase(strings.TrimSpace(e.Description))
	for _, t := range existing {
		if math.Abs(e.Amount-t.Amount) <= duplicateAmountTolerance+amountEpsilon &&
			foldCase(strings.TrimSpace(t.Description)) == desc {
			return true
		}
	}
	return false
}

// normalize produces the NormalizedExpense destined for the application of
// record. An unparseable date is kept trimmed as-is; the executor skips it
// at canonicalization time rather than losing the record silently here.
func normalize(e model.Expense, cfg PlanConfig) model.NormalizedExpense {
	date := strings.TrimSpace(e.Date)
	if d, err := CanonicalDate(e.Date); err == nil {
		date = d
	}

	category := strings.TrimSpace(e.Category)
	if category == "" {
		category = cfg.DefaultCategory
	}

	return model.NormalizedExpense{
		Amount:      RoundAmount(e.Amount),
		Description: strings.TrimSpace(e.Description),
		Date:        date,
		Category:    category,
	}
}
