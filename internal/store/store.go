// Package store persists reconciliation runs and idempotency records.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sells-group/recon-cli/internal/model"
)

// RunFilter specifies criteria for listing reconciliation runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	Identity string          `json:"identity,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the reconciliation pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, mode, identity string, plan model.PlanSummary) (*model.ReconRun, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.SyncSummary) error
	GetRun(ctx context.Context, runID string) (*model.ReconRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ReconRun, error)

	// Per-action audit trail
	SaveOutcomes(ctx context.Context, runID string, outcomes []model.ActionOutcome) error

	// Idempotency records
	GetIdempotency(ctx context.Context, key string) (json.RawMessage, bool, error)
	PutIdempotency(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error
	DeleteExpiredIdempotency(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// IdempotencyStore adapts a Store into the resilience cache interface so
// cached write results survive process restarts. The backing table gives
// check-and-set semantics a plain in-process map cannot.
type IdempotencyStore struct {
	s Store
}

// NewIdempotencyStore wraps s as an idempotency cache.
func NewIdempotencyStore(s Store) *IdempotencyStore {
	return &IdempotencyStore{s: s}
}

// Check returns the cached result for key if present and unexpired.
func (a *IdempotencyStore) Check(ctx context.Context, key string) (json.RawMessage, bool, error) {
	return a.s.GetIdempotency(ctx, key)
}

// Store inserts or overwrites the result for key with the given TTL.
func (a *IdempotencyStore) Store(ctx context.Context, key string, result json.RawMessage, ttl time.Duration) error {
	return a.s.PutIdempotency(ctx, key, result, ttl)
}
