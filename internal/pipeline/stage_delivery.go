package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/metrics"
	"review-orchestrator/internal/validator"
)

// DeliverStage posts the prioritized suggestions as platform comments and
// persists every decision outcome. One failed comment never blocks the
// rest: delivery is best effort per suggestion.
type DeliverStage struct {
	comments    CommentManagerService
	store       SuggestionStore
	concurrency int
	log         *slog.Logger
}

func NewDeliverStage(comments CommentManagerService, store SuggestionStore, concurrency int, log *slog.Logger) *DeliverStage {
	if concurrency <= 0 {
		concurrency = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &DeliverStage{comments: comments, store: store, concurrency: concurrency, log: log}
}

func (s *DeliverStage) Name() string { return StageDeliver }

func (s *DeliverStage) Execute(ctx context.Context, rc *ReviewContext) (*ReviewContext, error) {
	out := rc.Clone()
	lineCheck := validator.NewLineValidator(rc.ChangedFiles)

	// The slice is only indexed, never appended, inside the group.
	delivered := out.Prioritized

	// Outcomes of prior runs on this PR: a suggestion already posted for an
	// earlier commit is not posted again on re-analysis.
	alreadySent := make(map[string]bool)
	if s.store != nil {
		records, err := s.store.ListSuggestionsByPR(ctx, rc.Org, rc.Repository.ID, rc.PullRequest.Number)
		if err != nil {
			s.log.Warn("load prior suggestions failed", "error", err, "pr_number", rc.PullRequest.Number)
		}
		for _, r := range records {
			if r.Suggestion.DeliveryStatus == domain.DeliveryStatusSent {
				alreadySent[r.Suggestion.ID] = true
			}
		}
	}

	var toPost []int
	for i := range delivered {
		switch {
		case alreadySent[delivered[i].ID]:
			delivered[i].DeliveryStatus = domain.DeliveryStatusSent
			s.log.Debug("suggestion delivered in a prior run, skipping",
				"suggestion_id", delivered[i].ID,
				"pr_number", rc.PullRequest.Number)
		case !lineCheck.IsValid(delivered[i]):
			delivered[i].DeliveryStatus = domain.DeliveryStatusFailedLinesMismatch
			metrics.DeliveryFailures.WithLabelValues("lines_mismatch").Inc()
			s.log.Warn("suggestion lines not in diff, skipping delivery",
				"file", delivered[i].RelevantFile,
				"lines_start", delivered[i].RelevantLinesStart,
				"lines_end", delivered[i].RelevantLinesEnd,
				"pr_number", rc.PullRequest.Number)
		default:
			toPost = append(toPost, i)
		}
	}

	// Decisions persist before posting, so a crash mid-delivery never loses
	// the prioritization record; per-comment outcomes are stamped as each
	// post settles.
	if s.store != nil {
		record := append(append([]domain.CodeSuggestion(nil), delivered...), out.Discarded...)
		if err := s.store.SaveSuggestions(ctx, rc.Org, rc.Repository.ID, rc.PullRequest.Number, rc.PullRequest.HeadSHA, record); err != nil {
			s.log.Error("persist suggestions failed", "error", err, "pr_number", rc.PullRequest.Number)
			out.Errors = append(out.Errors, StageError{Stage: StageDeliver, Substage: "persist", Err: err})
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, i := range toPost {
		i := i
		g.Go(func() error {
			status := domain.DeliveryStatusSent
			if err := s.comments.PostSuggestion(gCtx, rc.Org, rc.Repository, rc.PullRequest, delivered[i]); err != nil {
				status = domain.DeliveryStatusFailed
				metrics.DeliveryFailures.WithLabelValues("api_error").Inc()
				s.log.Error("post suggestion failed",
					"suggestion_id", delivered[i].ID,
					"file", delivered[i].RelevantFile,
					"error", err,
					"pr_number", rc.PullRequest.Number)
				// Best effort: other comments proceed.
			}
			delivered[i].DeliveryStatus = status
			if s.store != nil {
				if err := s.store.UpdateDeliveryStatus(gCtx, delivered[i].ID, status); err != nil {
					s.log.Warn("stamp delivery status failed",
						"suggestion_id", delivered[i].ID, "error", err)
				}
			}
			return nil
		})
	}
	g.Wait()

	sent := 0
	for _, d := range delivered {
		if d.DeliveryStatus == domain.DeliveryStatusSent {
			sent++
		}
	}
	s.log.Info("delivery complete",
		"pr_number", rc.PullRequest.Number,
		"sent", sent,
		"failed", len(delivered)-sent)
	return out, nil
}
