package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// FetchFilesStage populates the changed-file set from the platform and
// applies the ignore-path and file-count gates.
type FetchFilesStage struct {
	prManager PullRequestManagerService
	log       *slog.Logger
}

func NewFetchFilesStage(prManager PullRequestManagerService, log *slog.Logger) *FetchFilesStage {
	if log == nil {
		log = slog.Default()
	}
	return &FetchFilesStage{prManager: prManager, log: log}
}

func (s *FetchFilesStage) Name() string { return StageFetchFiles }

func (s *FetchFilesStage) Execute(ctx context.Context, rc *ReviewContext) (*ReviewContext, error) {
	files, err := s.prManager.GetChangedFiles(ctx, rc.Org, rc.Repository, rc.PullRequest)
	if err != nil {
		return nil, fmt.Errorf("get changed files: %w", err)
	}

	var ignore []string
	maxFiles := 0
	if rc.Config != nil {
		ignore = rc.Config.IgnorePaths
		maxFiles = rc.Config.MaxFiles
	}

	kept := files[:0:0]
	for _, f := range files {
		if ignoredPath(ignore, f.Path) {
			s.log.Debug("ignoring file", "file", f.Path, "pr_number", rc.PullRequest.Number)
			continue
		}
		kept = append(kept, f)
	}

	if len(kept) == 0 {
		return rc.WithSkip("no reviewable files after ignore filters", StageFinalize), nil
	}
	if maxFiles > 0 && len(kept) > maxFiles {
		return rc.WithSkip(
			fmt.Sprintf("pull request touches %d files, above the configured limit of %d", len(kept), maxFiles),
			StageFinalize), nil
	}

	out := rc.Clone()
	out.ChangedFiles = kept
	return out, nil
}
