package ranking

import "review-orchestrator/internal/domain"

// NormalizeClusterSeverity harmonizes severity across each cluster: every
// member (parent and related alike) receives the maximum severity present in
// the group, so severity filtering cannot split a logical group into
// inconsistent accept/reject decisions. Suggestions outside any cluster keep
// their original severity; unset severities default to low.
func NormalizeClusterSeverity(suggestions []domain.CodeSuggestion) []domain.CodeSuggestion {
	out := make([]domain.CodeSuggestion, len(suggestions))
	copy(out, suggestions)

	for i := range out {
		if out[i].Severity.Rank() == 0 {
			out[i].Severity = domain.SeverityLow
		}
	}

	clusters := BuildClusters(out)
	if len(clusters) == 0 {
		return out
	}

	index := make(map[string]int, len(out))
	for i, s := range out {
		index[s.ID] = i
	}

	for _, members := range clusters {
		max := domain.SeverityLow
		for _, id := range members {
			if i, ok := index[id]; ok && out[i].Severity.Rank() > max.Rank() {
				max = out[i].Severity
			}
		}
		for _, id := range members {
			if i, ok := index[id]; ok {
				out[i].Severity = max
			}
		}
	}

	return out
}
