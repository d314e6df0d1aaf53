package pipeline

import (
	"fmt"

	"review-orchestrator/internal/domain"
)

// Status is the pipeline-level status carried in StatusInfo.
type Status string

const (
	StatusPending Status = "pending"
	StatusSkipped Status = "skipped"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// StatusInfo is the short-circuit signal a stage sets to stop or reroute the
// run. JumpToStage, when set, names the stage the orchestrator routes to
// next, skipping everything in between.
type StatusInfo struct {
	Status      Status
	Message     string
	JumpToStage string
}

// StageError is one recoverable failure recorded during a run. The errors
// list is append-only; no stage clears it.
type StageError struct {
	Stage    string
	Substage string
	Err      error
	Metadata map[string]any
}

func (e StageError) Error() string {
	if e.Substage != "" {
		return fmt.Sprintf("%s/%s: %v", e.Stage, e.Substage, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// ReviewContext is the state threaded through all stages of one pipeline
// run. Stages never mutate a context they received: they derive an updated
// copy via Clone and the With helpers, so stage execution stays
// order-independent and testable in isolation.
type ReviewContext struct {
	Org        domain.OrganizationAndTeamData
	Repository domain.Repository
	PullRequest domain.PullRequest
	Origin     domain.TriggerOrigin

	Config *domain.CodeReviewConfig

	Commits       []domain.Commit
	LastExecution *domain.AutomationExecution
	ChangedFiles  []domain.ChangedFile

	// Raw analysis output, keyed by normalized file path for the per-file
	// pass, plus the PR-level and cross-file passes.
	FileSuggestions      map[string][]domain.CodeSuggestion
	PRSuggestions        []domain.CodeSuggestion
	CrossFileSuggestions []domain.CodeSuggestion

	// Prioritization output.
	Prioritized []domain.CodeSuggestion
	Discarded   []domain.CodeSuggestion

	Summary string

	StatusInfo StatusInfo
	Errors     []StageError
}

// Clone returns a copy of the context with its slices and maps duplicated,
// so the caller can update the copy without aliasing the original.
func (c *ReviewContext) Clone() *ReviewContext {
	out := *c

	out.Commits = append([]domain.Commit(nil), c.Commits...)
	out.ChangedFiles = append([]domain.ChangedFile(nil), c.ChangedFiles...)
	out.PRSuggestions = append([]domain.CodeSuggestion(nil), c.PRSuggestions...)
	out.CrossFileSuggestions = append([]domain.CodeSuggestion(nil), c.CrossFileSuggestions...)
	out.Prioritized = append([]domain.CodeSuggestion(nil), c.Prioritized...)
	out.Discarded = append([]domain.CodeSuggestion(nil), c.Discarded...)
	out.Errors = append([]StageError(nil), c.Errors...)

	if c.FileSuggestions != nil {
		out.FileSuggestions = make(map[string][]domain.CodeSuggestion, len(c.FileSuggestions))
		for k, v := range c.FileSuggestions {
			out.FileSuggestions[k] = append([]domain.CodeSuggestion(nil), v...)
		}
	}
	if c.Config != nil {
		cfg := *c.Config
		out.Config = &cfg
	}
	if c.LastExecution != nil {
		exec := *c.LastExecution
		out.LastExecution = &exec
	}

	return &out
}

// WithStatus returns a copy of the context with StatusInfo replaced.
func (c *ReviewContext) WithStatus(info StatusInfo) *ReviewContext {
	out := c.Clone()
	out.StatusInfo = info
	return out
}

// WithSkip returns a copy marked skipped, routed to the named stage.
func (c *ReviewContext) WithSkip(message, jumpToStage string) *ReviewContext {
	return c.WithStatus(StatusInfo{Status: StatusSkipped, Message: message, JumpToStage: jumpToStage})
}

// WithError returns a copy with one recoverable failure appended.
func (c *ReviewContext) WithError(stage, substage string, err error, metadata map[string]any) *ReviewContext {
	out := c.Clone()
	out.Errors = append(out.Errors, StageError{Stage: stage, Substage: substage, Err: err, Metadata: metadata})
	return out
}

// AllSuggestions assembles the complete suggestion set from every analysis
// pass, per-file collections first in file order, then PR-level, then
// cross-file. Deterministic given identical inputs.
func (c *ReviewContext) AllSuggestions() []domain.CodeSuggestion {
	var all []domain.CodeSuggestion
	for _, f := range c.ChangedFiles {
		all = append(all, c.FileSuggestions[domain.NormalizePath(f.Path)]...)
	}
	all = append(all, c.PRSuggestions...)
	all = append(all, c.CrossFileSuggestions...)
	return all
}

// FinalStatus derives the terminal run status from StatusInfo and the
// accumulated errors.
func (c *ReviewContext) FinalStatus() string {
	switch c.StatusInfo.Status {
	case StatusSkipped:
		return domain.ExecutionStatusSkipped
	case StatusError:
		return domain.ExecutionStatusError
	}
	if len(c.Errors) > 0 {
		return domain.ExecutionStatusPartialError
	}
	return domain.ExecutionStatusSuccess
}
