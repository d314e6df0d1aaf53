// Package aggregator reconciles suggestions arriving from independent
// analysis passes into one consistent set before prioritization.
package aggregator

import (
	"fmt"

	"review-orchestrator/internal/domain"
)

// Merge combines suggestion sets from multiple passes into one set with
// duplicates removed. Input order is preserved for the survivors, so the
// result is deterministic given identical inputs regardless of the order
// passes completed in.
func Merge(passes ...[]domain.CodeSuggestion) []domain.CodeSuggestion {
	var merged []domain.CodeSuggestion
	seenID := make(map[string]bool)
	seenSpot := make(map[string]int) // file:lines -> index in merged

	for _, pass := range passes {
		for _, s := range pass {
			if s.ID != "" && seenID[s.ID] {
				continue
			}

			key := spotKey(s)
			if i, ok := seenSpot[key]; ok {
				// Same location from two passes: keep the higher-severity
				// finding so clustering/severity information is not lost.
				if s.Severity.Rank() > merged[i].Severity.Rank() {
					merged[i] = s
				}
				if s.ID != "" {
					seenID[s.ID] = true
				}
				continue
			}

			seenSpot[key] = len(merged)
			merged = append(merged, s)
			if s.ID != "" {
				seenID[s.ID] = true
			}
		}
	}
	return merged
}

// spotKey identifies a suggestion's location for deduplication. Suggestions
// without a file (PR-level) are keyed by ID so they never collapse into
// each other.
func spotKey(s domain.CodeSuggestion) string {
	if s.RelevantFile == "" {
		return "id:" + s.ID
	}
	return fmt.Sprintf("%s:%d:%d", domain.NormalizePath(s.RelevantFile), s.RelevantLinesStart, s.RelevantLinesEnd)
}
