package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"review-orchestrator/internal/domain"
)

// AnalyzeStage runs the analysis passes: per-file with bounded parallelism,
// then cross-file and PR-level. A failed pass for one file is recorded on
// the context and must not prevent aggregation of the other passes.
type AnalyzeStage struct {
	analyzer    AIAnalysisService
	concurrency int
	log         *slog.Logger
}

func NewAnalyzeStage(analyzer AIAnalysisService, concurrency int, log *slog.Logger) *AnalyzeStage {
	if concurrency <= 0 {
		concurrency = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &AnalyzeStage{analyzer: analyzer, concurrency: concurrency, log: log}
}

func (s *AnalyzeStage) Name() string { return StageAnalyze }

func (s *AnalyzeStage) Execute(ctx context.Context, rc *ReviewContext) (*ReviewContext, error) {
	out := rc.Clone()
	out.FileSuggestions = make(map[string][]domain.CodeSuggestion, len(rc.ChangedFiles))

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, file := range rc.ChangedFiles {
		file := file
		g.Go(func() error {
			result, err := s.analyzer.AnalyzeFile(gCtx, rc.Org, rc.PullRequest, file)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Settled-with-error: record and keep going.
				s.log.Warn("file analysis failed", "file", file.Path, "error", err,
					"pr_number", rc.PullRequest.Number)
				out.Errors = append(out.Errors, StageError{
					Stage:    StageAnalyze,
					Substage: "file",
					Err:      err,
					Metadata: map[string]any{"file": file.Path},
				})
				return nil
			}
			if result != nil {
				out.FileSuggestions[domain.NormalizePath(file.Path)] = stampLocation(result.CodeSuggestions, file.Path, "file")
			}
			return nil
		})
	}
	g.Wait()

	if result, err := s.analyzer.AnalyzeCrossFile(ctx, rc.Org, rc.PullRequest, rc.ChangedFiles); err != nil {
		s.log.Warn("cross-file analysis failed", "error", err, "pr_number", rc.PullRequest.Number)
		out.Errors = append(out.Errors, StageError{Stage: StageAnalyze, Substage: "cross_file", Err: err})
	} else if result != nil {
		out.CrossFileSuggestions = stampLocation(result.CodeSuggestions, "", "cross_file")
	}

	if result, err := s.analyzer.AnalyzePullRequest(ctx, rc.Org, rc.PullRequest, rc.ChangedFiles); err != nil {
		s.log.Warn("pr-level analysis failed", "error", err, "pr_number", rc.PullRequest.Number)
		out.Errors = append(out.Errors, StageError{Stage: StageAnalyze, Substage: "pr_level", Err: err})
	} else if result != nil {
		out.PRSuggestions = stampLocation(result.CodeSuggestions, "", "pr_level")
		if result.Summary != "" {
			out.Summary = result.Summary
		}
	}

	total := len(out.PRSuggestions) + len(out.CrossFileSuggestions)
	for _, v := range out.FileSuggestions {
		total += len(v)
	}
	s.log.Info("analysis complete",
		"pr_number", rc.PullRequest.Number,
		"files", len(rc.ChangedFiles),
		"suggestions", total,
		"failed_passes", len(out.Errors)-len(rc.Errors))
	return out, nil
}

// stampLocation fills file/severity defaults on raw analysis output and
// assigns a stable ID when the pass did not provide one. The pass name is
// part of the generated ID: two passes flagging the same location must not
// collide before the aggregator sees both.
func stampLocation(suggestions []domain.CodeSuggestion, fallbackFile, pass string) []domain.CodeSuggestion {
	out := make([]domain.CodeSuggestion, len(suggestions))
	copy(out, suggestions)
	for i := range out {
		if out[i].RelevantFile == "" {
			out[i].RelevantFile = fallbackFile
		}
		out[i].RelevantFile = domain.NormalizePath(out[i].RelevantFile)
		out[i].Severity = domain.ParseSeverity(string(out[i].Severity))
		if out[i].ID == "" {
			out[i].ID = fmt.Sprintf("%s:%s:%d-%d:%d", pass, out[i].RelevantFile,
				out[i].RelevantLinesStart, out[i].RelevantLinesEnd, i)
		}
	}
	return out
}
