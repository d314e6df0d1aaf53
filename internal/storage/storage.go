package storage

import (
	"context"
	"time"

	"review-orchestrator/internal/cadence"
	"review-orchestrator/internal/domain"
)

// SuggestionRecord is one persisted suggestion decision.
type SuggestionRecord struct {
	Suggestion domain.CodeSuggestion `json:"suggestion"`
	RepoID     string                `json:"repo_id"`
	PRNumber   int                   `json:"pr_number"`
	CommitSHA  string                `json:"commit_sha"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Repository is the persistence interface backing the pipeline gates,
// cadence decisions and suggestion delivery state.
type Repository interface {
	SaveExecution(ctx context.Context, exec *domain.AutomationExecution) error
	LastExecution(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (*domain.AutomationExecution, error)
	HasPriorExecution(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (bool, error)
	CountSuccessfulExecutionsSince(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, since time.Time) (int, error)

	GetCadenceState(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) (cadence.State, error)
	SetCadenceState(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, state cadence.State) error

	SaveSuggestions(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int, commitSHA string, suggestions []domain.CodeSuggestion) error
	UpdateDeliveryStatus(ctx context.Context, suggestionID string, status domain.DeliveryStatus) error
	ListSuggestionsByPR(ctx context.Context, org domain.OrganizationAndTeamData, repoID string, prNumber int) ([]SuggestionRecord, error)

	Close() error
}
