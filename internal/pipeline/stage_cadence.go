package pipeline

import (
	"context"
	"log/slog"

	"review-orchestrator/internal/cadence"
	"review-orchestrator/internal/domain"
)

// CadenceStage decides whether the pipeline proceeds at all under the
// repository's review cadence.
type CadenceStage struct {
	manager *cadence.Manager
	log     *slog.Logger
}

func NewCadenceStage(manager *cadence.Manager, log *slog.Logger) *CadenceStage {
	if log == nil {
		log = slog.Default()
	}
	return &CadenceStage{manager: manager, log: log}
}

func (s *CadenceStage) Name() string { return StageCadence }

func (s *CadenceStage) Execute(ctx context.Context, rc *ReviewContext) (*ReviewContext, error) {
	cfg := domain.CadenceConfig{Type: domain.CadenceTypeAutomatic}
	if rc.Config != nil {
		cfg = rc.Config.Cadence
	}

	decision := s.manager.Evaluate(ctx, cfg, rc.Org, rc.Repository, rc.PullRequest, rc.Origin)
	s.log.Debug("cadence decision",
		"pr_number", rc.PullRequest.Number,
		"proceed", decision.ShouldProcess,
		"state", decision.State,
		"reason", decision.Reason)

	if !decision.ShouldProcess {
		return rc.WithSkip(decision.Reason, StageFinalize), nil
	}
	return rc.Clone(), nil
}
