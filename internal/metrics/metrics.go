package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRuns counts completed pipeline runs, labeled by final status.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_pipeline_runs_total",
		Help: "The total number of review pipeline runs",
	}, []string{"status"}) // status: success, skipped, partial_error, error

	// PipelineDuration measures end-to-end pipeline run time.
	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "review_pipeline_duration_seconds",
		Help:    "Time taken to run the review pipeline",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	// StageErrors counts stage-local recoverable failures.
	StageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_stage_errors_total",
		Help: "Total number of recoverable stage failures",
	}, []string{"stage"})

	// SuggestionsPrioritized counts suggestions kept for delivery.
	SuggestionsPrioritized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_suggestions_prioritized_total",
		Help: "Total number of suggestions kept by prioritization",
	}, []string{"status"}) // status: prioritized, prioritized_by_clustering

	// SuggestionsDiscarded counts suggestions dropped, labeled by reason.
	SuggestionsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_suggestions_discarded_total",
		Help: "Total number of suggestions discarded by prioritization",
	}, []string{"reason"}) // reason: discarded_by_quantity, discarded_by_severity, discarded_by_clustering

	// PrioritizerFallbacks counts degraded prioritizer paths. The code label
	// distinguishes the full fail-safe from the kody-rules exemption fallback
	// so operators can detect when the exemption guarantee was lost.
	PrioritizerFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_prioritizer_fallbacks_total",
		Help: "Total number of prioritizer degraded-path activations",
	}, []string{"code"}) // code: fail_safe, kody_rules_exemption_lost

	// WebhookRequests counts incoming webhooks, labeled by status.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_webhook_requests_total",
		Help: "The total number of received webhook requests",
	}, []string{"status"}) // status: received, accepted, dropped_concurrency, invalid_signature, ignored_event, ...

	// CadencePauses counts auto-pause transitions from burst detection.
	CadencePauses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "review_cadence_pauses_total",
		Help: "Total number of PRs auto-paused by burst detection",
	})

	// DeliveryFailures counts failed suggestion deliveries.
	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "review_delivery_failures_total",
		Help: "Total number of failed suggestion comment deliveries",
	}, []string{"reason"}) // reason: api_error, lines_mismatch, summary_error
)
