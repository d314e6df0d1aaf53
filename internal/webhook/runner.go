package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/pipeline"
	isync "review-orchestrator/internal/sync"
)

// PipelineRunner bridges webhook events to the review pipeline. It holds the
// per-PR lock so two runs for the same pull request never overlap, even when
// duplicate-webhook suppression upstream is only best effort.
type PipelineRunner struct {
	orch    *pipeline.Orchestrator
	locks   *isync.KeyLock
	timeout time.Duration
	log     *slog.Logger
}

// NewPipelineRunner creates a runner over the orchestrator.
func NewPipelineRunner(orch *pipeline.Orchestrator, timeout time.Duration, log *slog.Logger) *PipelineRunner {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &PipelineRunner{
		orch:    orch,
		locks:   isync.NewKeyLock(),
		timeout: timeout,
		log:     log,
	}
}

// Run executes one pipeline run for the event, serialized per pull request.
func (r *PipelineRunner) Run(ctx context.Context, ev *Event, origin domain.TriggerOrigin) error {
	key := prKey(ev)
	r.locks.Lock(key)
	defer r.locks.Unlock(key)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rc := &pipeline.ReviewContext{
		Org:         ev.Org,
		Repository:  ev.Repository,
		PullRequest: ev.PullRequest,
		Origin:      origin,
	}

	final := r.orch.Run(runCtx, rc)
	if final.StatusInfo.Status == pipeline.StatusError {
		return fmt.Errorf("pipeline failed: %s", final.StatusInfo.Message)
	}
	return nil
}

func prKey(ev *Event) string {
	return fmt.Sprintf("%s/%s#%d", ev.Org.OrganizationID, ev.Repository.ID, ev.PullRequest.Number)
}
