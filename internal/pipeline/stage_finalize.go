package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/metrics"
)

// FinalizeStage closes out a run: it posts the PR summary, resolves the
// platform review/check-run, and records the execution. It is a designated
// finalize stage and runs even when an earlier gate skipped the pipeline,
// so external status is never left dangling.
type FinalizeStage struct {
	comments   CommentManagerService
	executions ExecutionStore
	log        *slog.Logger
}

func NewFinalizeStage(comments CommentManagerService, executions ExecutionStore, log *slog.Logger) *FinalizeStage {
	if log == nil {
		log = slog.Default()
	}
	return &FinalizeStage{comments: comments, executions: executions, log: log}
}

func (s *FinalizeStage) Name() string { return StageFinalize }

func (s *FinalizeStage) Execute(ctx context.Context, rc *ReviewContext) (*ReviewContext, error) {
	out := rc.Clone()

	if rc.StatusInfo.Status == StatusSkipped {
		// A skipped run yields a single explanatory message, no stack traces.
		if err := s.comments.FinishReview(ctx, rc.Org, rc.Repository, rc.PullRequest, true, rc.StatusInfo.Message); err != nil {
			s.log.Warn("finish review failed on skipped run", "error", err, "pr_number", rc.PullRequest.Number)
		}
		s.recordExecution(ctx, out)
		return out, nil
	}

	if out.Summary == "" {
		out.Summary = defaultSummary(out)
	}
	if err := s.comments.PostSummary(ctx, rc.Org, rc.Repository, rc.PullRequest, out.Summary); err != nil {
		s.log.Error("post summary failed", "error", err, "pr_number", rc.PullRequest.Number)
		metrics.DeliveryFailures.WithLabelValues("summary_error").Inc()
		out.Errors = append(out.Errors, StageError{Stage: StageFinalize, Substage: "summary", Err: err})
	}

	approve := !hasBlockingSuggestion(out.Prioritized)
	message := out.Summary
	if !approve {
		message = "Changes requested: critical findings need attention."
	}
	if err := s.comments.FinishReview(ctx, rc.Org, rc.Repository, rc.PullRequest, approve, message); err != nil {
		s.log.Error("finish review failed", "error", err, "pr_number", rc.PullRequest.Number)
		out.Errors = append(out.Errors, StageError{Stage: StageFinalize, Substage: "finish", Err: err})
	}

	s.recordExecution(ctx, out)
	return out, nil
}

func (s *FinalizeStage) recordExecution(ctx context.Context, rc *ReviewContext) {
	if s.executions == nil {
		return
	}
	exec := &domain.AutomationExecution{
		ID:        fmt.Sprintf("%s-%s-%d-%d", rc.Org.OrganizationID, rc.Repository.ID, rc.PullRequest.Number, time.Now().UnixNano()),
		Org:       rc.Org,
		RepoID:    rc.Repository.ID,
		PRNumber:  rc.PullRequest.Number,
		CommitSHA: rc.PullRequest.HeadSHA,
		Status:    rc.FinalStatus(),
		Origin:    rc.Origin,
		CreatedAt: time.Now(),
	}
	if err := s.executions.SaveExecution(ctx, exec); err != nil {
		// Non-blocking: a run is not failed by history bookkeeping.
		s.log.Error("save execution failed", "error", err, "pr_number", rc.PullRequest.Number)
	}
}

// hasBlockingSuggestion reports whether any delivered suggestion is critical.
func hasBlockingSuggestion(suggestions []domain.CodeSuggestion) bool {
	for _, s := range suggestions {
		if s.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}

func defaultSummary(rc *ReviewContext) string {
	if len(rc.Prioritized) == 0 {
		return "Automated review finished: no findings to report."
	}
	return fmt.Sprintf("Automated review finished: %d suggestion(s) posted, %d filtered out by policy.",
		len(rc.Prioritized), len(rc.Discarded))
}
