package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "recon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLite_CreateAndGetRun(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	plan := model.PlanSummary{ApprovedForTarget: 3, Rejected: 1, Duplicates: 1}
	run, err := s.CreateRun(ctx, "bidirectional", "ops@example.com", plan)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "bidirectional", got.Mode)
	assert.Equal(t, "ops@example.com", got.Identity)
	require.NotNil(t, got.Plan)
	assert.Equal(t, 3, got.Plan.ApprovedForTarget)
	assert.Nil(t, got.Summary, "no sync summary until the run completes")
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetRun(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestSQLite_CompleteRun(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "bidirectional", "ops@example.com", model.PlanSummary{ApprovedForTarget: 2})
	require.NoError(t, err)

	summary := &model.SyncSummary{
		RunID:     run.ID,
		Planned:   2,
		PostDedup: 2,
		Attempted: 2,
		Succeeded: 1,
		Failed:    1,
	}
	require.NoError(t, s.CompleteRun(ctx, run.ID, model.RunStatusPartial, summary))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 1, got.Summary.Succeeded)
	assert.Equal(t, 1, got.Summary.Failed)
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	err := s.CompleteRun(context.Background(), "nonexistent", model.RunStatusComplete, nil)
	assert.Error(t, err)
}

func TestSQLite_ListRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first, err := s.CreateRun(ctx, "bidirectional", "alice", model.PlanSummary{})
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, "bidirectional", "bob", model.PlanSummary{})
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(ctx, first.ID, model.RunStatusComplete, nil))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, first.ID, complete[0].ID)

	byIdentity, err := s.ListRuns(ctx, RunFilter{Identity: "bob"})
	require.NoError(t, err)
	require.Len(t, byIdentity, 1)
	assert.Equal(t, "bob", byIdentity[0].Identity)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_SaveOutcomes(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "bidirectional", "ops@example.com", model.PlanSummary{})
	require.NoError(t, err)

	outcomes := []model.ActionOutcome{
		{
			Action: model.TargetAction{Expense: model.NormalizedExpense{
				Amount: 10, Description: "Coffee", Date: "2026-02-01", Category: "Meals",
			}},
			Status:   model.ActionSucceeded,
			RecordID: "rec-1",
		},
		{
			Action: model.TargetAction{Expense: model.NormalizedExpense{
				Amount: 20, Description: "Parking", Date: "2026-02-02", Category: "Travel",
			}},
			Status:    model.ActionFailed,
			Error:     "service unavailable",
			Retryable: true,
		},
	}
	require.NoError(t, s.SaveOutcomes(ctx, run.ID, outcomes))

	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_actions WHERE run_id = ?`, run.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLite_SaveOutcomes_Empty(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.SaveOutcomes(context.Background(), "any", nil))
}

func TestSQLite_Idempotency(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, ok, err := s.GetIdempotency(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	result := json.RawMessage(`{"id":"rec-1"}`)
	require.NoError(t, s.PutIdempotency(ctx, "k1", result, time.Minute))

	got, ok, err := s.GetIdempotency(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(result), string(got))

	// Overwrite wins.
	require.NoError(t, s.PutIdempotency(ctx, "k1", json.RawMessage(`{"id":"rec-2"}`), time.Minute))
	got, ok, err = s.GetIdempotency(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"rec-2"}`, string(got))
}

func TestSQLite_IdempotencyExpiry(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	// Already-expired entry reads as a miss and is evicted.
	require.NoError(t, s.PutIdempotency(ctx, "stale", json.RawMessage(`1`), -time.Minute))

	_, ok, err := s.GetIdempotency(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok)

	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM idempotency`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "expired entry evicted on access")
}

func TestSQLite_DeleteExpiredIdempotency(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.PutIdempotency(ctx, "stale", json.RawMessage(`1`), -time.Minute))
	require.NoError(t, s.PutIdempotency(ctx, "fresh", json.RawMessage(`2`), time.Hour))

	deleted, err := s.DeleteExpiredIdempotency(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, ok, err := s.GetIdempotency(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_IdempotencyStoreAdapter(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	cache := NewIdempotencyStore(s)
	require.NoError(t, cache.Store(ctx, "k1", json.RawMessage(`{"id":"rec-1"}`), time.Minute))

	got, ok, err := cache.Check(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"rec-1"}`, string(got))
}
