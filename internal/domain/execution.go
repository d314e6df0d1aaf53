package domain

import "time"

// Execution statuses recorded for pipeline runs.
const (
	ExecutionStatusSuccess      = "success"
	ExecutionStatusSkipped      = "skipped"
	ExecutionStatusPartialError = "partial_error"
	ExecutionStatusError        = "error"
)

// AutomationExecution is one recorded pipeline run for a pull request, used
// by the cadence and commit-delta gates.
type AutomationExecution struct {
	ID        string                  `json:"id"`
	Org       OrganizationAndTeamData `json:"org"`
	RepoID    string                  `json:"repoId"`
	PRNumber  int                     `json:"prNumber"`
	CommitSHA string                  `json:"commitSha,omitempty"`
	Status    string                  `json:"status"`
	Origin    TriggerOrigin           `json:"origin,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
}
