package recon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recon-cli/internal/model"
)

func expense(amount float64, description, date string) model.Expense {
	return model.Expense{Amount: amount, Description: description, Date: date}
}

func TestDiff_ExactMatch(t *testing.T) {
	source := []model.Expense{expense(100, "Coffee Shop", "2026-02-01")}
	target := []model.Expense{expense(100, "Coffee Shop", "2026-02-01")}

	result := Diff(source, target, DefaultMatchConfig())

	require.Len(t, result.Matched, 1)
	assert.Empty(t, result.SourceOnly)
	assert.Empty(t, result.TargetOnly)
	assert.Equal(t, 1.0, result.MatchRate)
	assert.True(t, result.Matched[0].ExactAmount)
	assert.Equal(t, 1.0, result.Matched[0].Confidence)
}

func TestDiff_DateMismatch(t *testing.T) {
	source := []model.Expense{expense(100, "Coffee Shop", "2026-02-01")}
	target := []model.Expense{expense(100, "Coffee Shop", "2026-02-02")}

	result := Diff(source, target, DefaultMatchConfig())

	assert.Empty(t, result.Matched)
	assert.Len(t, result.SourceOnly, 1)
	assert.Len(t, result.TargetOnly, 1)
}

func TestDiff_DateMismatchAllowed(t *testing.T) {
	cfg := DefaultMatchConfig()
	cfg.RequireSameDate = false

	source := []model.Expense{expense(100, "Coffee Shop", "2026-02-01")}
	target := []model.Expense{expense(100, "Coffee Shop", "2026-02-02")}

	result := Diff(source, target, cfg)
	assert.Len(t, result.Matched, 1)
}

func TestDiff_AmountWithinTolerance(t *testing.T) {
	source := []model.Expense{expense(100.00, "Coffee Shop", "2026-02-01")}
	target := []model.Expense{expense(100.01, "Coffee Shop", "2026-02-01")}

	result := Diff(source, target, DefaultMatchConfig())

	require.Len(t, result.Matched, 1)
	assert.False(t, result.Matched[0].ExactAmount)
	assert.Equal(t, 1.0, result.Matched[0].Similarity)
	assert.InDelta(t, (1.0+0.9)/2, result.Matched[0].Confidence, 1e-9, "inexact amount scores 0.9")
}

func TestDiff_AmountOutsideTolerance(t *testing.T) {
	source := []model.Expense{expense(100.00, "Coffee Shop", "2026-02-01")}
	target := []model.Expense{expense(100.50, "Coffee Shop", "2026-02-01")}

	result := Diff(source, target, DefaultMatchConfig())
	assert.Empty(t, result.Matched)
}

func TestDiff_AmountJustOutsideTolerance(t *testing.T) {
	source := []model.Expense{expense(100.00, "Coffee Shop", "2026-02-01")}
	target := []model.Expense{expense(100.02, "Coffee Shop", "2026-02-01")}

	result := Diff(source, target, DefaultMatchConfig())
	assert.Empty(t, result.Matched)
}

func TestDiff_LowSimilarityRejected(t *testing.T) {
	source := []model.Expense{expense(100, "Coffee Shop Downtown", "2026-02-01")}
	target := []model.Expense{expense(100, "Office Supplies Warehouse", "2026-02-01")}

	result := Diff(source, target, DefaultMatchConfig())
	assert.Empty(t, result.Matched)
}

func TestDiff_CategoryContributesToSimilarity(t *testing.T) {
	source := []model.Expense{{Amount: 50, Description: "Lunch", Date: "2026-03-01", Category: "Meals Entertainment"}}
	target := []model.Expense{{Amount: 50, Description: "Lunch", Date: "2026-03-01", Category: "Meals Entertainment"}}

	result := Diff(source, target, DefaultMatchConfig())
	require.Len(t, result.Matched, 1)
	assert.Equal(t, 1.0, result.Matched[0].Similarity)
}

func TestDiff_PartitionInvariant(t *testing.T) {
	source := []model.Expense{
		expense(100, "Coffee Shop", "2026-02-01"),
		expense(25.50, "Taxi ride airport", "2026-02-02"),
		expense(9.99, "Paper clips office", "2026-02-03"),
	}
	target := []model.Expense{
		expense(100, "Coffee Shop", "2026-02-01"),
		expense(42, "Team dinner", "2026-02-04"),
	}

	result := Diff(source, target, DefaultMatchConfig())

	assert.Equal(t, len(source), len(result.Matched)+len(result.SourceOnly))
	assert.Equal(t, len(target), len(result.Matched)+len(result.TargetOnly))
	assert.Equal(t, 3, result.Source.Count)
	assert.Equal(t, 2, result.Target.Count)
	assert.InDelta(t, 135.49, result.Source.Sum, 1e-9)
}

func TestDiff_Deterministic(t *testing.T) {
	source := []model.Expense{
		expense(10, "Coffee Shop", "2026-02-01"),
		expense(10, "Coffee Shop", "2026-02-01"),
	}
	target := []model.Expense{
		expense(10, "Coffee Shop", "2026-02-01"),
		expense(10, "Coffee Shop", "2026-02-01"),
		expense(10, "Coffee Shop", "2026-02-01"),
	}

	first := Diff(source, target, DefaultMatchConfig())
	second := Diff(source, target, DefaultMatchConfig())

	assert.Equal(t, first.Matched, second.Matched)
	assert.Equal(t, first.SourceOnly, second.SourceOnly)
	assert.Equal(t, first.TargetOnly, second.TargetOnly)
}

func TestDiff_TieBreakFirstTarget(t *testing.T) {
	source := []model.Expense{expense(10, "Coffee Shop", "2026-02-01")}
	target := []model.Expense{
		{Amount: 10, Description: "Coffee Shop", Date: "2026-02-01", ExternalID: "first"},
		{Amount: 10, Description: "Coffee Shop", Date: "2026-02-01", ExternalID: "second"},
	}

	result := Diff(source, target, DefaultMatchConfig())

	require.Len(t, result.Matched, 1)
	assert.Equal(t, "first", result.Matched[0].Target.ExternalID)
	require.Len(t, result.TargetOnly, 1)
	assert.Equal(t, "second", result.TargetOnly[0].ExternalID)
}

func TestDiff_EmptyDescriptionsMatch(t *testing.T) {
	source := []model.Expense{expense(10, "", "2026-02-01")}
	target := []model.Expense{expense(10, "", "2026-02-01")}

	result := Diff(source, target, DefaultMatchConfig())
	require.Len(t, result.Matched, 1)
	assert.Equal(t, 1.0, result.Matched[0].Similarity)
}

func TestDiff_Empty(t *testing.T) {
	result := Diff(nil, nil, DefaultMatchConfig())
	assert.Empty(t, result.Matched)
	assert.Equal(t, 1.0, result.MatchRate)
}

func TestDiff_MatchRate(t *testing.T) {
	source := []model.Expense{
		expense(100, "Coffee Shop", "2026-02-01"),
		expense(55, "Parking garage downtown", "2026-02-05"),
	}
	target := []model.Expense{
		expense(100, "Coffee Shop", "2026-02-01"),
		expense(42, "Team dinner", "2026-02-04"),
		expense(7, "Tolls highway", "2026-02-06"),
	}

	result := Diff(source, target, DefaultMatchConfig())
	assert.InDelta(t, 1.0/3.0, result.MatchRate, 1e-9)
}
