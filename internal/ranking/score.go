// Package ranking implements the pure suggestion ranking engine: scoring,
// priority sorting, quantity limiting and clustering resolution. It performs
// no I/O; every function is deterministic over its inputs.
package ranking

import (
	"sort"

	"review-orchestrator/internal/domain"
)

// categoryWeights maps a normalized category label to its base score.
// Unknown categories score zero.
var categoryWeights = map[string]int{
	"kody_rules":                   100,
	"breaking_changes":             100,
	"security":                     50,
	"potential_issues":             40,
	"error_handling":               30,
	"performance_and_optimization": 25,
	"maintainability":              20,
	"refactoring":                  15,
	"code_style":                   10,
	"documentation_and_comments":   5,
}

// severityModifiers maps a severity to its score contribution.
var severityModifiers = map[domain.Severity]int{
	domain.SeverityCritical: 50,
	domain.SeverityHigh:     30,
	domain.SeverityMedium:   20,
	domain.SeverityLow:      10,
}

// categoryPriority is the fixed tie-break order between categories at equal
// rank score. Lower index wins.
var categoryPriority = map[string]int{
	"kody_rules":                   1,
	"breaking_changes":             2,
	"security":                     3,
	"potential_issues":             4,
	"error_handling":               5,
	"performance_and_optimization": 6,
	"maintainability":              7,
	"refactoring":                  8,
	"code_style":                   9,
	"documentation_and_comments":   10,
}

// unknownCategoryPriority sorts unrecognized categories after all known ones.
const unknownCategoryPriority = 999

// RankScore computes the composite priority score for a category/severity
// pair: category weight plus severity modifier. Pure function.
func RankScore(label string, severity domain.Severity) int {
	return categoryWeights[domain.NormalizeLabel(label)] + severityModifiers[severity]
}

// KnownCategory reports whether the label maps to a known category weight.
// Callers use this to surface silently-zero-weighted labels.
func KnownCategory(label string) bool {
	_, ok := categoryWeights[domain.NormalizeLabel(label)]
	return ok
}

// CategoryPriority returns the tie-break index for a category label.
func CategoryPriority(label string) int {
	if p, ok := categoryPriority[domain.NormalizeLabel(label)]; ok {
		return p
	}
	return unknownCategoryPriority
}

// StampScores returns a copy of the suggestions with RankScore populated
// from each suggestion's label and severity.
func StampScores(suggestions []domain.CodeSuggestion) []domain.CodeSuggestion {
	out := make([]domain.CodeSuggestion, len(suggestions))
	copy(out, suggestions)
	for i := range out {
		out[i].RankScore = RankScore(out[i].Label, out[i].Severity)
	}
	return out
}

// SortByPriority orders suggestions by rank score descending, breaking ties
// with the fixed category priority table. The sort is stable: suggestions
// with equal score and category keep their relative input order.
func SortByPriority(suggestions []domain.CodeSuggestion) []domain.CodeSuggestion {
	out := make([]domain.CodeSuggestion, len(suggestions))
	copy(out, suggestions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RankScore != out[j].RankScore {
			return out[i].RankScore > out[j].RankScore
		}
		return CategoryPriority(out[i].Label) < CategoryPriority(out[j].Label)
	})
	return out
}
