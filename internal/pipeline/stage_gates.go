package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"review-orchestrator/internal/domain"
)

// ValidateCommitsStage checks that the PR has commits the last execution has
// not seen yet. Without a new commit the run is skipped straight to
// finalize, keeping re-entry on duplicate webhooks idempotent.
type ValidateCommitsStage struct {
	prManager  PullRequestManagerService
	executions ExecutionStore
	log        *slog.Logger
}

func NewValidateCommitsStage(prManager PullRequestManagerService, executions ExecutionStore, log *slog.Logger) *ValidateCommitsStage {
	if log == nil {
		log = slog.Default()
	}
	return &ValidateCommitsStage{prManager: prManager, executions: executions, log: log}
}

func (s *ValidateCommitsStage) Name() string { return StageValidateCommits }

func (s *ValidateCommitsStage) Execute(ctx context.Context, rc *ReviewContext) (*ReviewContext, error) {
	if !rc.Org.Valid() || !rc.PullRequest.Valid() || !rc.Repository.Valid() {
		// Fatal config failure: nothing downstream can act without
		// identifiers, but the stage does not throw.
		s.log.Error("missing essential identifiers, stage is a no-op",
			"organization_id", rc.Org.OrganizationID,
			"repo_id", rc.Repository.ID,
			"pr_number", rc.PullRequest.Number)
		return rc.Clone(), nil
	}

	commits, err := s.prManager.ListCommits(ctx, rc.Org, rc.Repository, rc.PullRequest)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	if len(commits) == 0 {
		return rc.WithSkip("pull request has no commits", StageFinalize), nil
	}

	out := rc.Clone()
	out.Commits = commits
	if out.PullRequest.HeadSHA == "" {
		out.PullRequest.HeadSHA = commits[len(commits)-1].SHA
	}

	last, err := s.executions.LastExecution(ctx, rc.Org, rc.Repository.ID, rc.PullRequest.Number)
	if err != nil {
		// Missing history is not a reason to block a review.
		s.log.Warn("last execution lookup failed, proceeding", "error", err,
			"pr_number", rc.PullRequest.Number)
		return out, nil
	}
	out.LastExecution = last

	if last != nil && last.CommitSHA != "" && last.CommitSHA == out.PullRequest.HeadSHA {
		return out.WithSkip("no new commits since last review", StageFinalize), nil
	}
	return out, nil
}

// LoadConfigStage resolves the review configuration and applies the static
// gates: draft filter and base-branch pattern matching.
type LoadConfigStage struct {
	resolver ConfigResolver
	log      *slog.Logger
}

func NewLoadConfigStage(resolver ConfigResolver, log *slog.Logger) *LoadConfigStage {
	if log == nil {
		log = slog.Default()
	}
	return &LoadConfigStage{resolver: resolver, log: log}
}

func (s *LoadConfigStage) Name() string { return StageLoadConfig }

func (s *LoadConfigStage) Execute(ctx context.Context, rc *ReviewContext) (*ReviewContext, error) {
	cfg, err := s.resolver.Resolve(ctx, rc.Org, rc.Repository)
	if err != nil {
		return nil, fmt.Errorf("resolve review config: %w", err)
	}

	out := rc.Clone()
	out.Config = cfg

	if rc.PullRequest.IsDraft && !cfg.ReviewDrafts {
		return out.WithSkip("draft pull requests are excluded", StageFinalize), nil
	}
	if len(cfg.BaseBranchPatterns) > 0 && !matchBranch(cfg.BaseBranchPatterns, rc.PullRequest.TargetBranch) {
		return out.WithSkip(
			fmt.Sprintf("target branch %q does not match configured patterns", rc.PullRequest.TargetBranch),
			StageFinalize), nil
	}
	return out, nil
}

// matchBranch matches a branch against glob-style patterns, also accepting
// an exact or prefix match with a trailing "*".
func matchBranch(patterns []string, branch string) bool {
	for _, p := range patterns {
		if p == branch {
			return true
		}
		if ok, err := path.Match(p, branch); err == nil && ok {
			return true
		}
		if strings.HasSuffix(p, "*") && strings.HasPrefix(branch, strings.TrimSuffix(p, "*")) {
			return true
		}
	}
	return false
}

// ignoredPath reports whether a changed file matches an ignore pattern.
func ignoredPath(patterns []string, file string) bool {
	file = domain.NormalizePath(file)
	for _, p := range patterns {
		if ok, err := path.Match(p, file); err == nil && ok {
			return true
		}
		if strings.HasSuffix(p, "/**") && strings.HasPrefix(file, strings.TrimSuffix(p, "/**")+"/") {
			return true
		}
		if p == file {
			return true
		}
	}
	return false
}
