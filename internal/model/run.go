package model

import "time"

// RunStatus represents the state of a persisted reconciliation run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// ReconRun is the audit record of one reconciliation run.
type ReconRun struct {
	ID        string       `json:"id"`
	Mode      string       `json:"mode"`
	Identity  string       `json:"identity"`
	Status    RunStatus    `json:"status"`
	Plan      *PlanSummary `json:"plan,omitempty"`
	Summary   *SyncSummary `json:"summary,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
