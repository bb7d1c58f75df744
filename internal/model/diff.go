package model

// MatchedPair is a source record matched to a target record, with the
// score details that produced the match.
type MatchedPair struct {
	Source      Expense `json:"source"`
	Target      Expense `json:"target"`
	Confidence  float64 `json:"confidence"`
	Similarity  float64 `json:"similarity"`
	AmountDiff  float64 `json:"amount_diff"`
	ExactAmount bool    `json:"exact_amount"`
}

// SideTotals aggregates one side of a diff.
type SideTotals struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
}

// DiffResult is the three-way classification of two expense collections.
// Every input record appears in exactly one of Matched (paired), SourceOnly,
// or TargetOnly.
type DiffResult struct {
	Matched     []MatchedPair `json:"matched"`
	SourceOnly  []Expense     `json:"source_only"`
	TargetOnly  []Expense     `json:"target_only"`
	Differences []string      `json:"differences"`
	Source      SideTotals    `json:"source"`
	Target      SideTotals    `json:"target"`
	MatchRate   float64       `json:"match_rate"`
}
