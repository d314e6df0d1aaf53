package ranking

import (
	"sort"

	"review-orchestrator/internal/domain"
)

// LimitByFile groups suggestions by file, sorts each group by priority and
// keeps the top perFile entries per group. Zero means unlimited. Group
// output order follows first appearance of each file in the input.
func LimitByFile(suggestions []domain.CodeSuggestion, perFile int) []domain.CodeSuggestion {
	if perFile <= 0 {
		return SortByPriority(suggestions)
	}

	var order []string
	groups := make(map[string][]domain.CodeSuggestion)
	for _, s := range suggestions {
		file := domain.NormalizePath(s.RelevantFile)
		if _, ok := groups[file]; !ok {
			order = append(order, file)
		}
		groups[file] = append(groups[file], s)
	}

	var kept []domain.CodeSuggestion
	for _, file := range order {
		sorted := SortByPriority(groups[file])
		if len(sorted) > perFile {
			sorted = sorted[:perFile]
		}
		kept = append(kept, sorted...)
	}
	return kept
}

// LimitByPR sorts the whole set by priority and keeps the top max entries.
// Zero means unlimited.
func LimitByPR(suggestions []domain.CodeSuggestion, max int) []domain.CodeSuggestion {
	sorted := SortByPriority(suggestions)
	if max <= 0 || len(sorted) <= max {
		return sorted
	}
	return sorted[:max]
}

// severityBucketOrder is the concatenation order for by-severity limiting.
var severityBucketOrder = []domain.Severity{
	domain.SeverityCritical,
	domain.SeverityHigh,
	domain.SeverityMedium,
	domain.SeverityLow,
}

// LimitBySeverity partitions suggestions into severity buckets, sorts each
// bucket by rank score descending and keeps the configured cap per bucket
// (zero = unlimited for that bucket). Buckets concatenate critical-first.
func LimitBySeverity(suggestions []domain.CodeSuggestion, limits domain.SeverityLimits) []domain.CodeSuggestion {
	buckets := make(map[domain.Severity][]domain.CodeSuggestion)
	for _, s := range suggestions {
		sev := s.Severity
		if sev.Rank() == 0 {
			sev = domain.SeverityLow
		}
		buckets[sev] = append(buckets[sev], s)
	}

	var kept []domain.CodeSuggestion
	for _, sev := range severityBucketOrder {
		bucket := make([]domain.CodeSuggestion, len(buckets[sev]))
		copy(bucket, buckets[sev])
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].RankScore > bucket[j].RankScore
		})
		if limit := limits.For(sev); limit > 0 && len(bucket) > limit {
			bucket = bucket[:limit]
		}
		kept = append(kept, bucket...)
	}
	return kept
}

// Discarded returns the elements of before whose ID is absent from after,
// each stamped with the supplied discard status and DeliveryStatus not_sent.
func Discarded(before, after []domain.CodeSuggestion, status domain.PriorityStatus) []domain.CodeSuggestion {
	surviving := make(map[string]struct{}, len(after))
	for _, s := range after {
		surviving[s.ID] = struct{}{}
	}

	var discarded []domain.CodeSuggestion
	for _, s := range before {
		if _, ok := surviving[s.ID]; ok {
			continue
		}
		s.PriorityStatus = status
		s.DeliveryStatus = domain.DeliveryStatusNotSent
		discarded = append(discarded, s)
	}
	return discarded
}
