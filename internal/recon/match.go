package recon

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/recon-cli/internal/model"
)

// MatchConfig holds the diff engine tolerances.
type MatchConfig struct {
	// AmountTolerance is the maximum absolute amount difference for a pair
	// to match. Default: 0.01.
	AmountTolerance float64

	// RequireSameDate rejects pairs whose calendar dates are both present
	// and unequal. Default: true.
	RequireSameDate bool

	// MinSimilarity is the minimum Jaccard similarity over description and
	// category tokens. Default: 0.5.
	MinSimilarity float64
}

// DefaultMatchConfig returns the standard matching tolerances.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		AmountTolerance: 0.01,
		RequireSameDate: true,
		MinSimilarity:   0.5,
	}
}

// candidate is a target record prepared for repeated pairwise tests.
type candidate struct {
	expense  model.Expense
	tokens   map[string]struct{}
	date     string
	consumed bool
}

// Diff classifies two expense collections into matched pairs, source-only,
// and target-only records. Assignment is greedy in source input order: each
// source record takes the highest-confidence unconsumed target, with ties
// broken by target input order. Deterministic for identical inputs.
func Diff(source, target []model.Expense, cfg MatchConfig) model.DiffResult {
	candidates := make([]candidate, len(target))
	for i, t := range target {
		candidates[i] = candidate{
			expense: t,
			tokens:  tokenSet(t.Description + " " + t.Category),
			date:    comparableDate(t.Date),
		}
	}

	result := model.DiffResult{
		Source: totals(source),
		Target: totals(target),
	}

	for _, s := range source {
		sTokens := tokenSet(s.Description + " " + s.Category)
		sDate := comparableDate(s.Date)

		best := -1
		var bestPair model.MatchedPair
		for j := range candidates {
			if candidates[j].consumed {
				continue
			}
			pair, ok := score(s, sTokens, sDate, &candidates[j], cfg)
			if !ok {
				continue
			}
			// Strict greater keeps the first target encountered on ties.
			if best < 0 || pair.Confidence > bestPair.Confidence {
				best = j
				bestPair = pair
			}
		}

		if best >= 0 {
			candidates[best].consumed = true
			result.Matched = append(result.Matched, bestPair)
			if bestPair.AmountDiff > 0 {
				result.Differences = append(result.Differences,
					fmt.Sprintf("matched within tolerance: %q amounts differ by %.2f", s.Description, bestPair.AmountDiff))
			}
		} else {
			result.SourceOnly = append(result.SourceOnly, s)
			result.Differences = append(result.Differences, describe("source only", s))
		}
	}

	for _, c := range candidates {
		if !c.consumed {
			result.TargetOnly = append(result.TargetOnly, c.expense)
			result.Differences = append(result.Differences, describe("target only", c.expense))
		}
	}

	result.MatchRate = matchRate(len(result.Matched), len(source), len(target))
	return result
}

// score runs the pairwise match test: amount tolerance, same calendar date,
// then Jaccard similarity over description+category tokens.
func score(s model.Expense, sTokens map[string]struct{}, sDate string, c *candidate, cfg MatchConfig) (model.MatchedPair, bool) {
	amountDiff := math.Abs(s.Amount - c.expense.Amount)
	if amountDiff > cfg.AmountTolerance+amountEpsilon {
		return model.MatchedPair{}, false
	}

	if cfg.RequireSameDate && sDate != "" && c.date != "" && sDate != c.date {
		return model.MatchedPair{}, false
	}

	sim := jaccard(sTokens, c.tokens)
	if sim < cfg.MinSimilarity {
		return model.MatchedPair{}, false
	}

	amountScore := 0.9
	if amountDiff == 0 {
		amountScore = 1
	}

	return model.MatchedPair{
		Source:      s,
		Target:      c.expense,
		Confidence:  (sim + amountScore) / 2,
		Similarity:  sim,
		AmountDiff:  amountDiff,
		ExactAmount: amountDiff == 0,
	}, true
}

// comparableDate canonicalizes a date for equality testing, falling back to
// the trimmed raw string when it cannot be parsed.
func comparableDate(s string) string {
	if d, err := CanonicalDate(s); err == nil {
		return d
	}
	return strings.TrimSpace(s)
}

func totals(records []model.Expense) model.SideTotals {
	t := model.SideTotals{Count: len(records)}
	for _, r := range records {
		t.Sum += r.Amount
	}
	t.Sum = RoundAmount(t.Sum)
	return t
}

// matchRate is matched / max(|source|, |target|). Two empty collections are
// fully reconciled.
func matchRate(matched, sourceLen, targetLen int) float64 {
	denom := sourceLen
	if targetLen > denom {
		denom = targetLen
	}
	if denom == 0 {
		return 1
	}
	return float64(matched) / float64(denom)
}

func describe(label string, e model.Expense) string {
	return fmt.Sprintf("%s: %.2f %q (%s)", label, e.Amount, e.Description, strings.TrimSpace(e.Date))
}
