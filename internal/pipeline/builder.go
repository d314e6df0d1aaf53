package pipeline

import (
	"log/slog"

	"review-orchestrator/internal/cadence"
	"review-orchestrator/internal/prioritizer"
)

// Deps are the collaborators the standard review pipeline needs.
type Deps struct {
	PRManager   PullRequestManagerService
	Contents    ContentLoader
	Resolver    ConfigResolver
	Cadence     *cadence.Manager
	Analyzer    AIAnalysisService
	Comments    CommentManagerService
	Suggestions SuggestionStore
	Executions  ExecutionStore
	Policy      *prioritizer.Policy

	AnalysisConcurrency int
	DeliveryConcurrency int
}

// NewReviewPipeline wires the standard stage order: gates first, then
// fetch, context loading, analysis, prioritization, delivery and finalize.
// Finalize is the only stage that still runs after a skip.
func NewReviewPipeline(deps Deps, log *slog.Logger) *Orchestrator {
	stages := []Stage{
		NewValidateCommitsStage(deps.PRManager, deps.Executions, log),
		NewLoadConfigStage(deps.Resolver, log),
		NewCadenceStage(deps.Cadence, log),
		NewFetchFilesStage(deps.PRManager, log),
		NewLoadContextStage(deps.Contents, deps.AnalysisConcurrency, log),
		NewAnalyzeStage(deps.Analyzer, deps.AnalysisConcurrency, log),
		NewPrioritizeStage(deps.Policy, log),
		NewDeliverStage(deps.Comments, deps.Suggestions, deps.DeliveryConcurrency, log),
		NewFinalizeStage(deps.Comments, deps.Executions, log),
	}
	return NewOrchestrator(stages, []string{StageFinalize}, log)
}
