package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Files above this size keep only their patch; full content adds little to
// the analysis prompt and inflates token usage.
const maxContextFileSize = 256 * 1024

// LoadContextStage fetches the full content of each changed file at the PR
// head, so analysis sees the surrounding code and not just the patch.
// Content loading is best effort: a fetch failure leaves that file with its
// patch only.
type LoadContextStage struct {
	loader      ContentLoader
	concurrency int
	log         *slog.Logger
}

func NewLoadContextStage(loader ContentLoader, concurrency int, log *slog.Logger) *LoadContextStage {
	if concurrency <= 0 {
		concurrency = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &LoadContextStage{loader: loader, concurrency: concurrency, log: log}
}

func (s *LoadContextStage) Name() string { return StageLoadContext }

func (s *LoadContextStage) Execute(ctx context.Context, rc *ReviewContext) (*ReviewContext, error) {
	out := rc.Clone()
	files := out.ChangedFiles

	var mu sync.Mutex
	loaded := 0

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range files {
		if files[i].ChangeType == "delete" {
			continue
		}
		i := i
		g.Go(func() error {
			content, err := s.loader.GetFileContent(gCtx, rc.Org, rc.Repository, files[i].Path, rc.PullRequest.HeadSHA)
			if err != nil {
				s.log.Warn("fetch file content failed, analyzing patch only",
					"file", files[i].Path, "error", err, "pr_number", rc.PullRequest.Number)
				return nil
			}
			if len(content) > maxContextFileSize {
				s.log.Debug("file too large for analysis context",
					"file", files[i].Path, "size", len(content))
				return nil
			}

			mu.Lock()
			files[i].Content = content
			loaded++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	s.log.Info("context loaded",
		"pr_number", rc.PullRequest.Number,
		"files", len(files),
		"with_content", loaded)
	return out, nil
}
