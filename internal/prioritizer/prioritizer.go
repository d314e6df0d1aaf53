// Package prioritizer implements the suggestion prioritization policy: it
// takes the full suggestion set assembled from all analysis passes and
// decides, under the repository's SuggestionControlConfig, which suggestions
// are delivered and which are discarded, with severity and clustering
// handled consistently.
package prioritizer

import (
	"fmt"
	"log/slog"

	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/metrics"
	"review-orchestrator/internal/ranking"
)

// Result partitions the input set. Every input suggestion appears in exactly
// one of the two slices.
type Result struct {
	Prioritized []domain.CodeSuggestion
	Discarded   []domain.CodeSuggestion
}

// Policy orchestrates the ranking engine and severity normalizer under a
// suggestion control configuration.
type Policy struct {
	log *slog.Logger

	// filter runs the full filtering pipeline; replaceable in tests.
	filter func(domain.SuggestionControlConfig, []domain.CodeSuggestion) Result
}

// New creates a Policy. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Policy {
	if log == nil {
		log = slog.Default()
	}
	p := &Policy{log: log}
	p.filter = p.filterAndLimit
	return p
}

// Prioritize applies the configured filtering and limiting pipeline to the
// suggestion set of one pull request.
//
// The policy never raises: any internal failure degrades to returning all
// input suggestions prioritized with an empty discard list, favoring
// over-delivery over silent suggestion loss.
func (p *Policy) Prioritize(org domain.OrganizationAndTeamData, control domain.SuggestionControlConfig, prNumber int, suggestions []domain.CodeSuggestion) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("prioritization failed, marking all suggestions prioritized",
				"organization_id", org.OrganizationID,
				"pr_number", prNumber,
				"panic", r)
			metrics.PrioritizerFallbacks.WithLabelValues("fail_safe").Inc()
			res = failSafe(suggestions)
		}
	}()

	p.logUnknownCategories(suggestions)

	hasKodyRules := false
	for i := range suggestions {
		if suggestions[i].IsKodyRule() {
			hasKodyRules = true
			break
		}
	}

	if hasKodyRules && !control.ApplyFiltersToKodyRules {
		exempt, err := p.prioritizeWithKodyExemption(control, suggestions)
		if err == nil {
			res = exempt
			p.count(res)
			return res
		}
		// Existing fallback behavior: on any error in the exempt path the
		// whole set re-runs through the full filter, which loses the
		// exemption. The dedicated fallback code makes this detectable.
		p.log.Error("kody rules exemption path failed, re-running full filter",
			"organization_id", org.OrganizationID,
			"pr_number", prNumber,
			"error", err,
			"fallback_code", "kody_rules_exemption_lost")
		metrics.PrioritizerFallbacks.WithLabelValues("kody_rules_exemption_lost").Inc()
	}

	res = p.filter(control, suggestions)
	p.count(res)
	return res
}

// prioritizeWithKodyExemption splits kody_rules suggestions out, runs the
// full pipeline over the remainder only, and unconditionally prioritizes the
// kody_rules set. An internal panic is converted to an error so the caller
// can apply the legacy full-filter fallback.
func (p *Policy) prioritizeWithKodyExemption(control domain.SuggestionControlConfig, suggestions []domain.CodeSuggestion) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kody rules exemption path: %v", r)
		}
	}()

	var kodyRules, normal []domain.CodeSuggestion
	for _, s := range suggestions {
		if s.IsKodyRule() {
			s.PriorityStatus = domain.PriorityStatusPrioritized
			s.DeliveryStatus = domain.DeliveryStatusNotSent
			s.RankScore = ranking.RankScore(s.Label, s.Severity)
			kodyRules = append(kodyRules, s)
		} else {
			normal = append(normal, s)
		}
	}

	filtered := p.filter(control, normal)
	res.Prioritized = append(kodyRules, filtered.Prioritized...)
	res.Discarded = filtered.Discarded
	return res, nil
}

// filterAndLimit is the full pipeline: clustering exemption, severity
// normalization, severity-level filtering, quantity limiting and clustering
// readmission.
func (p *Policy) filterAndLimit(control domain.SuggestionControlConfig, suggestions []domain.CodeSuggestion) Result {
	if len(suggestions) == 0 {
		return Result{}
	}

	scored := ranking.StampScores(suggestions)

	// Clustering children leave the limiting pool before any filtering so a
	// cluster is never double-limited.
	pool := scored
	var related []domain.CodeSuggestion
	if control.GroupingMode.Grouped() {
		pool = ranking.NormalizeClusterSeverity(scored)
		pool, related = ranking.SplitRelated(pool)
	}

	// When limiting by severity bucket the per-bucket caps govern exclusion,
	// not the severity floor.
	filterLevel := control.SeverityLevelFilter
	if control.LimitationType == domain.LimitationTypeSeverity {
		filterLevel = domain.SeverityLow
	}

	survivors := filterBySeverityLevel(pool, filterLevel)
	severityDiscards := ranking.Discarded(pool, survivors, domain.PriorityStatusDiscardedBySeverity)

	if len(survivors) == 0 {
		_, excluded := ranking.ReadmitRelated(related, nil)
		return Result{Discarded: append(severityDiscards, excluded...)}
	}

	var kept []domain.CodeSuggestion
	switch control.LimitationType {
	case domain.LimitationTypeFile:
		kept = ranking.LimitByFile(survivors, control.MaxSuggestions)
	case domain.LimitationTypeSeverity:
		kept = ranking.LimitBySeverity(survivors, control.SeverityLimits)
	default:
		kept = ranking.LimitByPR(survivors, control.MaxSuggestions)
	}
	quantityDiscards := ranking.Discarded(survivors, kept, domain.PriorityStatusDiscardedByQuantity)

	for i := range kept {
		kept[i].PriorityStatus = domain.PriorityStatusPrioritized
		kept[i].DeliveryStatus = domain.DeliveryStatusNotSent
	}

	readmitted, excluded := ranking.ReadmitRelated(related, kept)

	discarded := severityDiscards
	discarded = append(discarded, quantityDiscards...)
	discarded = append(discarded, excluded...)

	return Result{
		Prioritized: append(kept, readmitted...),
		Discarded:   discarded,
	}
}

// filterBySeverityLevel keeps suggestions whose severity is at or above the
// cumulative threshold.
func filterBySeverityLevel(suggestions []domain.CodeSuggestion, level domain.Severity) []domain.CodeSuggestion {
	floor := level.Rank()
	if floor == 0 {
		floor = domain.SeverityLow.Rank()
	}

	var kept []domain.CodeSuggestion
	for _, s := range suggestions {
		sev := s.Severity
		if sev.Rank() == 0 {
			sev = domain.SeverityLow
		}
		if sev.Rank() >= floor {
			kept = append(kept, s)
		}
	}
	return kept
}

// failSafe marks every input suggestion prioritized with no discards.
func failSafe(suggestions []domain.CodeSuggestion) Result {
	out := make([]domain.CodeSuggestion, len(suggestions))
	copy(out, suggestions)
	for i := range out {
		out[i].PriorityStatus = domain.PriorityStatusPrioritized
		out[i].DeliveryStatus = domain.DeliveryStatusNotSent
	}
	return Result{Prioritized: out}
}

func (p *Policy) logUnknownCategories(suggestions []domain.CodeSuggestion) {
	seen := make(map[string]struct{})
	for _, s := range suggestions {
		label := domain.NormalizeLabel(s.Label)
		if ranking.KnownCategory(s.Label) {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		p.log.Warn("unrecognized suggestion category, scoring as zero weight", "label", label)
	}
}

func (p *Policy) count(res Result) {
	for _, s := range res.Prioritized {
		metrics.SuggestionsPrioritized.WithLabelValues(string(s.PriorityStatus)).Inc()
	}
	for _, s := range res.Discarded {
		metrics.SuggestionsDiscarded.WithLabelValues(string(s.PriorityStatus)).Inc()
	}
}
