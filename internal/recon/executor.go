package recon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/recon-cli/internal/model"
	"github.com/sells-group/recon-cli/internal/resilience"
)

// CreateFunc is the injected record-creation operation: the only write the
// executor performs against the application of record.
type CreateFunc func(ctx context.Context, exp model.NormalizedExpense, identity string) (*model.Record, error)

// Preconditions that prevent a run from starting at all.
var (
	ErrMissingIdentity = eris.New("recon: identity is required")
	ErrEmptyPlan       = eris.New("recon: plan has no target actions")
)

// createOperation names the downstream write for idempotency keying.
const createOperation = "expense.create"

// ExecConfig controls executor pacing.
type ExecConfig struct {
	// InterActionDelay bounds load on the downstream system between
	// sequential actions. Default: 100ms.
	InterActionDelay time.Duration
}

// Executor applies a plan's target actions one at a time through the
// resilient call wrapper. Execution is strictly sequential so the audit
// log stays ordered and downstream load stays bounded.
type Executor struct {
	create  CreateFunc
	caller  *resilience.Caller
	limiter *rate.Limiter
	nowFunc func() time.Time
}

// NewExecutor creates an executor around the injected create operation.
func NewExecutor(create CreateFunc, caller *resilience.Caller, cfg ExecConfig) *Executor {
	delay := cfg.InterActionDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &Executor{
		create:  create,
		caller:  caller,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		nowFunc: time.Now,
	}
}

// Execute deduplicates and applies the plan's target actions, aggregating a
// partial-failure-aware summary. Every action is attempted exactly once;
// the run completes and reports even when every action fails. Re-running the
// same plan is safe: dedup keys and the idempotency cache suppress repeat
// downstream writes.
func (e *Executor) Execute(ctx context.Context, actions []model.TargetAction, identity string) (*model.SyncSummary, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, ErrMissingIdentity
	}
	if len(actions) == 0 {
		return nil, ErrEmptyPlan
	}

	summary := &model.SyncSummary{
		RunID:     uuid.New().String(),
		StartedAt: e.nowFunc().UTC(),
		Planned:   len(actions),
	}

	deduped := dedupe(actions)
	summary.PostDedup = len(deduped)

	zap.L().Info("sync starting",
		zap.String("run_id", summary.RunID),
		zap.String("identity", identity),
		zap.Int("planned", summary.Planned),
		zap.Int("post_dedup", summary.PostDedup),
	)

	for _, action := range deduped {
		if err := e.limiter.Wait(ctx); err != nil {
			summary.FinishedAt = e.nowFunc().UTC()
			return summary, eris.Wrap(err, "recon: execution interrupted")
		}
		outcome := e.apply(ctx, action, identity)
		summary.Outcomes = append(summary.Outcomes, outcome)
		summary.Attempted++
		switch outcome.Status {
		case model.ActionSucceeded:
			summary.Succeeded++
		case model.ActionFailed:
			summary.Failed++
		case model.ActionSkipped:
			summary.Skipped++
		}
	}

	summary.FinishedAt = e.nowFunc().UTC()
	zap.L().Info("sync finished",
		zap.String("run_id", summary.RunID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// apply executes one action: local date canonicalization first, then the
// downstream create through timeout, retry, breaker, and idempotency cache.
func (e *Executor) apply(ctx context.Context, action model.TargetAction, identity string) model.ActionOutcome {
	exp := action.Expense

	date, err := CanonicalDate(exp.Date)
	if err != nil {
		// Never reaches the downstream service; re-running will not help
		// until the input date is fixed.
		zap.L().Warn("action skipped: unparseable date",
			zap.String("date", exp.Date),
			zap.String("description", exp.Description),
		)
		return model.ActionOutcome{
			Action: action,
			Status: model.ActionSkipped,
			Error:  err.Error(),
		}
	}
	exp.Date = date

	args := map[string]any{
		"amount":      exp.Amount,
		"date":        exp.Date,
		"category":    exp.Category,
		"description": exp.Description,
	}

	record, err := resilience.CallWrite(ctx, e.caller, identity, createOperation, args, func(ctx context.Context) (*model.Record, error) {
		return e.create(ctx, exp, identity)
	})
	if err == nil {
		var recordID string
		if record != nil {
			recordID = record.ID
		}
		return model.ActionOutcome{
			Action:   action,
			Status:   model.ActionSucceeded,
			RecordID: recordID,
		}
	}

	cls := resilience.Classify(err)
	status := model.ActionSkipped
	if cls.Retryable {
		// Transient or upstream trouble: a whole-batch re-run is safe.
		status = model.ActionFailed
	}
	zap.L().Warn("action did not succeed",
		zap.String("description", exp.Description),
		zap.String("status", string(status)),
		zap.String("category", string(cls.Category)),
		zap.Error(err),
	)
	return model.ActionOutcome{
		Action:    action,
		Status:    status,
		Error:     err.Error(),
		Retryable: cls.Retryable,
	}
}

// dedupe drops actions whose composite key has already been seen in this
// run, guarding against structurally identical lines from the source
// document. The planned/post-dedup counts record how many were dropped.
func dedupe(actions []model.TargetAction) []model.TargetAction {
	seen := make(map[string]struct{}, len(actions))
	deduped := make([]model.TargetAction, 0, len(actions))
	for _, action := range actions {
		key := actionKey(action.Expense)
		if _, dup := seen[key]; dup {
			zap.L().Debug("duplicate action removed",
				zap.String("key", key),
			)
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, action)
	}
	return deduped
}

// actionKey builds the composite dedup key: canonical date, amount,
// category, and description, case-folded.
func actionKey(exp model.NormalizedExpense) string {
	date := exp.Date
	if d, err := CanonicalDate(exp.Date); err == nil {
		date = d
	}
	return foldCase(fmt.Sprintf("%s|%.2f|%s|%s", date, exp.Amount, exp.Category, exp.Description))
}
