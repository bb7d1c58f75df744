package model

import "time"

// ActionStatus is the tri-state outcome of one executed action.
type ActionStatus string

const (
	// ActionSucceeded means the downstream write completed.
	ActionSucceeded ActionStatus = "succeeded"
	// ActionFailed means the write failed with a retryable error; re-running
	// the reconciliation is safe.
	ActionFailed ActionStatus = "failed"
	// ActionSkipped means the action was dropped for a non-retryable reason
	// (local validation or a data problem reported downstream).
	ActionSkipped ActionStatus = "skipped"
)

// ActionOutcome records what happened to a single planned action.
type ActionOutcome struct {
	Action    TargetAction `json:"action"`
	Status    ActionStatus `json:"status"`
	RecordID  string       `json:"record_id,omitempty"`
	Error     string       `json:"error,omitempty"`
	Retryable bool         `json:"retryable,omitempty"`
}

// SyncSummary is the partial-failure-aware result of one execution run.
// Counts satisfy Attempted == Succeeded + Failed + Skipped and
// Attempted <= PostDedup.
type SyncSummary struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Planned    int             `json:"planned"`
	PostDedup  int             `json:"post_dedup"`
	Attempted  int             `json:"attempted"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	Outcomes   []ActionOutcome `json:"outcomes"`
}
