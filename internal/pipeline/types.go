package pipeline

import (
	"context"

	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/storage"
)

// Stage names, in execution order.
const (
	StageValidateCommits = "validate_commits"
	StageLoadConfig      = "load_config"
	StageCadence         = "cadence"
	StageFetchFiles      = "fetch_changed_files"
	StageLoadContext     = "load_context"
	StageAnalyze         = "analyze"
	StagePrioritize      = "prioritize"
	StageDeliver         = "deliver"
	StageFinalize        = "finalize"
)

// Stage is one named unit of the review pipeline. Execute derives a new
// context from its input; it must not mutate the input in place. Stages
// handle their own recoverable failures by recording them on the returned
// context; an error return is the backstop the orchestrator records.
type Stage interface {
	Name() string
	Execute(ctx context.Context, rc *ReviewContext) (*ReviewContext, error)
}

// AIAnalysisResult is the output of one analysis pass.
type AIAnalysisResult struct {
	CodeSuggestions []domain.CodeSuggestion `json:"codeSuggestions"`
	Summary         string                  `json:"summary,omitempty"`
}

// AIAnalysisService runs the AI analysis passes. Implementations live
// outside the pipeline; a nil result with nil error means the pass produced
// nothing.
type AIAnalysisService interface {
	AnalyzeFile(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, file domain.ChangedFile) (*AIAnalysisResult, error)
	AnalyzeCrossFile(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, files []domain.ChangedFile) (*AIAnalysisResult, error)
	AnalyzePullRequest(ctx context.Context, org domain.OrganizationAndTeamData, pr domain.PullRequest, files []domain.ChangedFile) (*AIAnalysisResult, error)
}

// CommentManagerService posts review output to the platform.
type CommentManagerService interface {
	PostSuggestion(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, s domain.CodeSuggestion) error
	PostSummary(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, summary string) error
	// FinishReview closes the platform check-run / review so external status
	// is never left dangling, approving when approve is true.
	FinishReview(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest, approve bool, message string) error
}

// ContentLoader fetches full file contents from the platform at a ref.
type ContentLoader interface {
	GetFileContent(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, path, ref string) (string, error)
}

// PullRequestManagerService fetches changed-file metadata and commits from
// the platform.
type PullRequestManagerService interface {
	ListCommits(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.Commit, error)
	GetChangedFiles(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository, pr domain.PullRequest) ([]domain.ChangedFile, error)
}

// ConfigResolver resolves the effective review configuration for one
// repository.
type ConfigResolver interface {
	Resolve(ctx context.Context, org domain.OrganizationAndTeamData, repo domain.Repository) (*domain.CodeReviewConfig, error)
}

// SuggestionStore persists suggestion decisions and delivery outcomes for
// incremental re-analysis.
type SuggestionStore interface {
	SaveSuggestions(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, commitSHA string, suggestions []domain.CodeSuggestion) error
	UpdateDeliveryStatus(ctx context.Context, suggestionID string, status domain.DeliveryStatus) error
	ListSuggestionsByPR(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) ([]storage.SuggestionRecord, error)
}

// ExecutionStore supplies and records pipeline executions for the gates.
type ExecutionStore interface {
	LastExecution(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (*domain.AutomationExecution, error)
	SaveExecution(ctx context.Context, exec *domain.AutomationExecution) error
}
