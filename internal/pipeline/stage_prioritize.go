package pipeline

import (
	"context"
	"log/slog"

	"review-orchestrator/internal/aggregator"
	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/prioritizer"
)

// PrioritizeStage reduces the raw suggestion collections to the delivery
// set. It runs once per PR over the fully-assembled set; prioritization is
// a terminal deterministic pass, never incremental.
type PrioritizeStage struct {
	policy *prioritizer.Policy
	log    *slog.Logger
}

func NewPrioritizeStage(policy *prioritizer.Policy, log *slog.Logger) *PrioritizeStage {
	if log == nil {
		log = slog.Default()
	}
	return &PrioritizeStage{policy: policy, log: log}
}

func (s *PrioritizeStage) Name() string { return StagePrioritize }

func (s *PrioritizeStage) Execute(ctx context.Context, rc *ReviewContext) (*ReviewContext, error) {
	var filePasses [][]domain.CodeSuggestion
	for _, f := range rc.ChangedFiles {
		filePasses = append(filePasses, rc.FileSuggestions[domain.NormalizePath(f.Path)])
	}
	passes := append(filePasses, rc.PRSuggestions, rc.CrossFileSuggestions)
	all := aggregator.Merge(passes...)

	control := domain.SuggestionControlConfig{}
	if rc.Config != nil {
		control = rc.Config.SuggestionControl
	}

	result := s.policy.Prioritize(rc.Org, control, rc.PullRequest.Number, all)

	out := rc.Clone()
	out.Prioritized = result.Prioritized
	out.Discarded = result.Discarded
	s.log.Info("prioritization complete",
		"pr_number", rc.PullRequest.Number,
		"input", len(all),
		"prioritized", len(result.Prioritized),
		"discarded", len(result.Discarded))
	return out, nil
}
