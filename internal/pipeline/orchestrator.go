package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"review-orchestrator/internal/metrics"
)

// Orchestrator composes an ordered list of stages into the end-to-end review
// workflow. It applies global skip/jump decisions from StatusInfo, records
// stage failures without aborting the run, and always executes designated
// finalize stages so external status is never left dangling.
type Orchestrator struct {
	stages []Stage
	final  map[string]bool
	log    *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given stages.
// finalStages names the stages that still run after a skip or error.
func NewOrchestrator(stages []Stage, finalStages []string, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	final := make(map[string]bool, len(finalStages))
	for _, name := range finalStages {
		final[name] = true
	}
	return &Orchestrator{stages: stages, final: final, log: log}
}

// Run executes the pipeline over the initial context and returns the final
// context. It is the single entry point for webhook handlers and job
// processors.
func (o *Orchestrator) Run(ctx context.Context, rc *ReviewContext) *ReviewContext {
	start := time.Now()
	rc = rc.WithStatus(StatusInfo{Status: StatusPending})

	for i := 0; i < len(o.stages); i++ {
		stage := o.stages[i]

		// After a skip or error, only finalize stages still run.
		if rc.StatusInfo.Status == StatusSkipped || rc.StatusInfo.Status == StatusError {
			if jump := rc.StatusInfo.JumpToStage; jump != "" {
				if target := o.indexOf(jump, i); target >= 0 {
					i = target
					stage = o.stages[i]
					rc = rc.WithStatus(StatusInfo{Status: rc.StatusInfo.Status, Message: rc.StatusInfo.Message})
				} else {
					o.log.Warn("jump target not found, running finalize stages only", "stage", jump)
					rc = rc.WithStatus(StatusInfo{Status: rc.StatusInfo.Status, Message: rc.StatusInfo.Message})
					continue
				}
			} else if !o.final[stage.Name()] {
				continue
			}
		}

		next, err := o.executeStage(ctx, stage, rc)
		if err != nil {
			o.log.Error("stage failed", "stage", stage.Name(), "error", err,
				"pr_number", rc.PullRequest.Number)
			metrics.StageErrors.WithLabelValues(stage.Name()).Inc()
			rc = rc.WithError(stage.Name(), "", err, nil)
			continue
		}
		rc = next
	}

	status := rc.FinalStatus()
	metrics.PipelineRuns.WithLabelValues(status).Inc()
	metrics.PipelineDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	o.log.Info("pipeline finished",
		"status", status,
		"pr_number", rc.PullRequest.Number,
		"repo", rc.Repository.Name,
		"errors", len(rc.Errors),
		"duration_ms", time.Since(start).Milliseconds())
	return rc
}

// executeStage runs one stage with a panic backstop, so a misbehaving stage
// degrades to a recorded error instead of killing the run.
func (o *Orchestrator) executeStage(ctx context.Context, stage Stage, rc *ReviewContext) (next *ReviewContext, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("panic in stage", "stage", stage.Name(), "panic", r,
				"stack", string(debug.Stack()))
			next, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	o.log.Debug("running stage", "stage", stage.Name(), "pr_number", rc.PullRequest.Number)
	return stage.Execute(ctx, rc)
}

// indexOf finds the position of a named stage at or after from.
func (o *Orchestrator) indexOf(name string, from int) int {
	for i := from; i < len(o.stages); i++ {
		if o.stages[i].Name() == name {
			return i
		}
	}
	return -1
}
