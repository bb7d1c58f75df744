package model

import "time"

// Rejection stages.
const (
	RejectStageValidation = "validation"
	RejectStageDuplicate  = "duplicate"
)

// TargetAction is one approved source-to-target write: the normalized
// expense to create plus the raw record it derives from.
type TargetAction struct {
	Expense NormalizedExpense `json:"expense"`
	Source  Expense           `json:"source"`
}

// Rejection records an expense that could not be placed in the plan, with
// the stage that rejected it and the side it was rejected for.
type Rejection struct {
	Expense Expense `json:"expense"`
	Side    Side    `json:"side"`
	Stage   string  `json:"stage"`
	Reason  string  `json:"reason"`
}

// IgnoredPair is a matched pair that requires no action.
type IgnoredPair struct {
	Pair   MatchedPair `json:"pair"`
	Reason string      `json:"reason"`
}

// PlanSummary holds the plan's counters.
type PlanSummary struct {
	ApprovedForTarget int `json:"approved_for_target"`
	ApprovedForSource int `json:"approved_for_source"`
	Ignored           int `json:"ignored"`
	Rejected          int `json:"rejected"`
	Duplicates        int `json:"duplicates"`
}

// ReconciliationPlan is the additive-only action plan for one reconciliation
// run. No list ever instructs a deletion; a record that cannot be placed is
// rejected, never dropped. The plan is immutable once built.
type ReconciliationPlan struct {
	CreatedAt   time.Time      `json:"created_at"`
	Mode        string         `json:"mode"`
	Summary     PlanSummary    `json:"summary"`
	AddToTarget []TargetAction `json:"add_to_target"`
	AddToSource []Expense      `json:"add_to_source"`
	Ignored     []IgnoredPair  `json:"ignored"`
	Rejected    []Rejection    `json:"rejected"`
}
