package domain

// Platform identifies the source-control platform a webhook came from.
type Platform string

const (
	PlatformGitHub    Platform = "github"
	PlatformGitLab    Platform = "gitlab"
	PlatformBitbucket Platform = "bitbucket"
	PlatformAzure     Platform = "azure"
)

// TriggerOrigin identifies what started a pipeline run.
type TriggerOrigin string

const (
	OriginWebhook  TriggerOrigin = "webhook"
	OriginCommand  TriggerOrigin = "command"
	OriginSchedule TriggerOrigin = "schedule"
)

// OrganizationAndTeamData identifies the tenant a review runs for.
type OrganizationAndTeamData struct {
	OrganizationID string `json:"organizationId"`
	TeamID         string `json:"teamId,omitempty"`
}

// Valid reports whether the essential tenant identifier is present.
func (o OrganizationAndTeamData) Valid() bool {
	return o.OrganizationID != ""
}

// Repository identifies one repository on a platform.
type Repository struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Platform Platform `json:"platform,omitempty"`
}

// Valid reports whether the essential repository identifiers are present.
func (r Repository) Valid() bool {
	return r.ID != "" && r.Name != ""
}

// PullRequest represents the core domain model for a Pull Request.
// It serves as the canonical data structure across the application
// (Webhook -> Orchestrator -> Stages).
type PullRequest struct {
	Number       int    `json:"number"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Author       string `json:"author,omitempty"`
	SourceBranch string `json:"sourceBranch,omitempty"`
	TargetBranch string `json:"targetBranch,omitempty"`
	HeadSHA      string `json:"headSha,omitempty"`
	IsDraft      bool   `json:"isDraft,omitempty"`
}

// Valid reports whether the essential PR identifier is present.
func (p PullRequest) Valid() bool {
	return p.Number > 0
}

// ChangedFile is one file touched by the pull request.
type ChangedFile struct {
	Path       string `json:"path"`
	PrevPath   string `json:"prevPath,omitempty"`
	ChangeType string `json:"changeType,omitempty"` // add, modify, delete, rename
	Patch      string `json:"patch,omitempty"`
	Content    string `json:"content,omitempty"`
	Additions  int    `json:"additions,omitempty"`
	Deletions  int    `json:"deletions,omitempty"`
}

// Commit is one commit on the PR source branch.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message,omitempty"`
	Author  string `json:"author,omitempty"`
}
