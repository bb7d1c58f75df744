// Package recon implements the reconciliation core: the fuzzy diff engine,
// the deterministic planner, and the resilient sync executor.
package recon

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

// dateLayouts are the accepted free-form calendar date representations,
// tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// CanonicalDate parses a free-form, timezone-naive date string into the
// canonical YYYY-MM-DD form.
func CanonicalDate(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", eris.New("recon: empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", eris.Errorf("recon: unparseable date %q", s)
}

// amountEpsilon absorbs float64 representation error when an amount
// difference sits exactly on a tolerance boundary (100.01 - 100.00 is
// slightly more than 0.01 in float64).
const amountEpsilon = 1e-9

// RoundAmount rounds a currency amount to two decimal places.
func RoundAmount(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// foldCase lower-cases s for case-insensitive comparison, handling
// non-ASCII descriptions correctly.
func foldCase(s string) string {
	return cases.Fold().String(s)
}

// tokenSet splits s into case-folded word tokens longer than two characters.
func tokenSet(s string) map[string]struct{} {
	words := strings.FieldsFunc(foldCase(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

// jaccard computes |a ∩ b| / |a ∪ b|. Two empty sets are fully similar;
// exactly one empty set is fully dissimilar.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var intersection int
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
