package model

// Side identifies which of the two reconciled collections a record came from.
type Side string

const (
	// SideSource is the document-derived expense list.
	SideSource Side = "source"
	// SideTarget is the application of record.
	SideTarget Side = "target"
)

// Expense is a raw expense as read from either side. Values are never mutated
// after ingestion; every transformation produces a new value.
type Expense struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Date        string  `json:"date"` // free-form, timezone-naive calendar date
	Category    string  `json:"category,omitempty"`
	ExternalID  string  `json:"external_id,omitempty"`
	Side        Side    `json:"side,omitempty"`
}

// NormalizedExpense is an expense prepared for the application of record:
// amount rounded to two decimal places, description trimmed, date in
// canonical YYYY-MM-DD form, category defaulted when absent.
type NormalizedExpense struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Category    string  `json:"category"`
}

// Record is a reference to an expense that exists in the application of
// record, as returned by a create call.
type Record struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}
