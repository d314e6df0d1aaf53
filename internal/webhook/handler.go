package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"review-orchestrator/internal/config"
	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/metrics"
	isync "review-orchestrator/internal/sync"
)

// Handler handles incoming pull-request webhook events from any supported
// platform and hands accepted events to the worker pool.
type Handler struct {
	runner   *PipelineRunner
	config   *config.Config
	parser   *PayloadParser
	pool     *WorkerPool
	debounce *isync.Debouncer
}

// NewHandler creates a new webhook handler
func NewHandler(cfg *config.Config, runner *PipelineRunner, parser *PayloadParser, pool *WorkerPool) *Handler {
	ttl := time.Duration(cfg.Webhook.DebounceSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Handler{
		runner:   runner,
		config:   cfg,
		parser:   parser,
		pool:     pool,
		debounce: isync.NewDebouncer(ttl),
	}
}

// ServeHTTP handles incoming webhook requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Debug("received webhook request", "method", r.Method, "content_length", r.ContentLength)
	metrics.WebhookRequests.WithLabelValues("received").Inc()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// 1. Security: Limit request body size
	r.Body = http.MaxBytesReader(w, r.Body, h.config.Server.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Warn("read body failed", "error", err)
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		metrics.WebhookRequests.WithLabelValues("error_read").Inc()
		return
	}

	// 2. Security: Verify webhook signature if secret is configured
	if h.config.Server.WebhookSecret != "" {
		signature := r.Header.Get("X-Hub-Signature-256")
		if signature == "" {
			signature = r.Header.Get("X-Hub-Signature")
		}
		if signature == "" {
			slog.Warn("missing signature")
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			metrics.WebhookRequests.WithLabelValues("invalid_signature").Inc()
			return
		}

		if !verifySignature(body, signature, h.config.Server.WebhookSecret) {
			slog.Warn("invalid signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			metrics.WebhookRequests.WithLabelValues("invalid_signature").Inc()
			return
		}
	}

	if !utf8.Valid(body) {
		slog.Warn("request body is not valid utf-8")
		http.Error(w, "Invalid encoding", http.StatusBadRequest)
		metrics.WebhookRequests.WithLabelValues("invalid_encoding").Inc()
		return
	}

	ev, err := h.parser.Parse(body, eventHint(r))
	if err != nil {
		slog.Warn("payload parse failed", "error", err, "payload_preview", truncateForLog(body, 500))
		metrics.WebhookRequests.WithLabelValues("invalid_payload").Inc()
		http.Error(w, "Unrecognized payload", http.StatusBadRequest)
		return
	}

	if ev.Action == ActionIgnored {
		slog.Info("ignoring event", "pr_number", ev.PullRequest.Number, "repo", ev.Repository.Name)
		metrics.WebhookRequests.WithLabelValues("ignored_event").Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "Event ignored")
		return
	}

	if !ev.Repository.Valid() {
		slog.Warn("parsed event missing repository identifiers", "repo", ev.Repository)
		metrics.WebhookRequests.WithLabelValues("invalid_payload").Inc()
		http.Error(w, "Incomplete payload", http.StatusBadRequest)
		return
	}

	metrics.WebhookRequests.WithLabelValues("accepted").Inc()

	// Commit pushes debounce so a burst of pushes collapses into one run;
	// a newly opened PR runs immediately.
	if ev.Action == ActionSynchronized {
		h.debounce.Add(prKey(ev), func() {
			if !h.dispatch(ev) {
				slog.Warn("debounced run dropped, queue full",
					"pr_number", ev.PullRequest.Number, "repo", ev.Repository.Name)
			}
		})
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "Pull request update queued for review")
		return
	}

	if !h.dispatch(ev) {
		http.Error(w, "Server busy, please retry later", http.StatusTooManyRequests)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Pull request queued for review")
}

// dispatch submits a pipeline run to the worker pool. Returns false when
// the queue is at capacity.
func (h *Handler) dispatch(ev *Event) bool {
	err := h.pool.Submit(func(ctx context.Context) error {
		return h.runner.Run(ctx, ev, domain.OriginWebhook)
	})
	if err != nil {
		slog.Warn("worker queue full, request dropped")
		metrics.WebhookRequests.WithLabelValues("dropped_concurrency").Inc()
		return false
	}
	return true
}

func eventHint(r *http.Request) string {
	for _, header := range []string{"X-GitHub-Event", "X-Gitlab-Event", "X-Event-Key"} {
		if v := r.Header.Get(header); v != "" {
			return v
		}
	}
	return ""
}

// verifySignature validates the HMAC-SHA256 signature of a webhook request
// Expected header format: sha256=<hex-encoded-signature>
func verifySignature(body []byte, signature, secret string) bool {
	parts := strings.SplitN(signature, "=", 2)
	if len(parts) != 2 {
		return false
	}

	algorithm := parts[0]
	providedSig := parts[1]

	// Only support SHA256
	if algorithm != "sha256" {
		slog.Warn("unsupported signature algorithm", "algorithm", algorithm)
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	// Use constant-time comparison to prevent timing attacks
	return hmac.Equal([]byte(expectedSig), []byte(providedSig))
}

func truncateForLog(b []byte, max int) string {
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
