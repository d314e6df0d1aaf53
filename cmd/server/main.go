package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"review-orchestrator/internal/analysis"
	"review-orchestrator/internal/cadence"
	"review-orchestrator/internal/config"
	"review-orchestrator/internal/domain"
	"review-orchestrator/internal/pipeline"
	"review-orchestrator/internal/platform"
	"review-orchestrator/internal/prioritizer"
	"review-orchestrator/internal/storage"
	"review-orchestrator/internal/webhook"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// probeOrg is the synthetic tenant used by the readiness storage check.
var probeOrg = domain.OrganizationAndTeamData{OrganizationID: "_probe"}

func main() {

	// Local development convenience, a missing .env is not an error
	_ = godotenv.Load()

	// Load configuration first
	cfg := config.LoadConfig()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup structured logging with configurable level, format, and output
	logger, logCleanup := setupLogger(cfg)
	defer logCleanup()
	slog.SetDefault(logger)

	// Initialize the analysis client once at startup
	analyzer := analysis.NewClient(cfg)

	// Verify LLM connection
	if err := analyzer.Ping(context.Background()); err != nil {
		slog.Error("llm health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analysis client initialized", "backend", analyzer.Name())

	// Initialize storage
	var store storage.Repository
	if cfg.Storage.Driver == "sqlite" {
		var err error
		store, err = storage.NewSQLiteRepository(cfg.Storage.DSN)
		if err != nil {
			slog.Error("init storage failed", "error", err)
			os.Exit(1)
		}
		defer store.Close()
	} else {
		slog.Error("unknown storage driver", "driver", cfg.Storage.Driver)
		os.Exit(1)
	}

	// Platform client serves both PR metadata and comment delivery
	gh := platform.NewGitHubClient(cfg.Platform.BaseURL, cfg.Platform.Token, cfg.Platform.Timeout)

	// Assemble the review pipeline
	cadenceMgr := cadence.NewManager(store, gh, logger)
	policy := prioritizer.New(logger)

	orch := pipeline.NewReviewPipeline(pipeline.Deps{
		PRManager:           gh,
		Contents:            gh,
		Resolver:            config.NewStaticResolver(cfg.Review),
		Cadence:             cadenceMgr,
		Analyzer:            analyzer,
		Comments:            gh,
		Suggestions:         store,
		Executions:          store,
		Policy:              policy,
		AnalysisConcurrency: cfg.Analysis.Concurrency,
		DeliveryConcurrency: cfg.Delivery.Concurrency,
	}, logger)

	runner := webhook.NewPipelineRunner(orch, 0, logger)

	// Worker pool executes pipeline runs off the webhook hot path
	pool := webhook.NewWorkerPool(int(cfg.Server.ConcurrencyLimit), int(cfg.Server.ConcurrencyLimit)*4)
	pool.Start()

	// Initialize webhook handler
	webhookHandler := webhook.NewHandler(cfg, runner, webhook.NewPayloadParser(), pool)

	// Setup HTTP server
	mux := http.NewServeMux()
	mux.Handle("/webhook", webhookHandler)

	// Liveness probe (Kubernetes: startup/liveness)
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Readiness probe (Kubernetes: readiness)
	// Checks if all dependencies are healthy
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), cfg.Storage.Timeout)
		defer cancel()
		if _, err := store.GetCadenceState(ctx, probeOrg, "readiness", 0); err != nil {
			slog.Warn("storage unhealthy", "error", err)
			http.Error(w, "Storage Unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	})

	// Add root path handler to catch misconfiguration (e.g. omitted /webhook in URL)
	// It logs a helpful warning but still returns 404 to be semantically correct.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			slog.Warn("received request at root path",
				"path", r.URL.Path,
				"method", r.Method,
				"msg", "please configure webhook URL to path '/webhook'",
			)
		}
		http.NotFound(w, r)
	})

	// Prometheus Metrics Endpoint
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server start failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("server stopping")

	// Give the server 5 seconds to shutdown gracefully
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown forced", "error", err)
		os.Exit(1)
	}

	// Drain in-flight pipeline runs
	slog.Info("waiting for tasks")
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("tasks completed")
	case <-time.After(30 * time.Second):
		slog.Warn("task timeout, exiting")
	}

	// defer store.Close() will handle storage cleanup (via WAL checkpoint)

	slog.Info("server stopped")
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg *config.Config) (*slog.Logger, func()) {
	var writers []io.Writer
	var closers []io.Closer
	outputs := strings.Split(cfg.Log.Output, ",")

	for _, output := range outputs {
		output = strings.TrimSpace(output)
		if output == "" {
			continue
		}

		var w io.Writer
		switch output {
		case "stderr":
			w = os.Stderr
		case "stdout":
			w = os.Stdout
		default:
			// Use lumberjack for log rotation
			l := &lumberjack.Logger{
				Filename:   output,
				MaxSize:    cfg.Log.Rotation.MaxSize,
				MaxBackups: cfg.Log.Rotation.MaxBackups,
				MaxAge:     cfg.Log.Rotation.MaxAge,
				Compress:   cfg.Log.Rotation.Compress,
			}
			w = l
			closers = append(closers, l)
		}
		writers = append(writers, w)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	multiWriter := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: cfg.GetLogLevel()}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(multiWriter, opts)
	} else {
		handler = slog.NewTextHandler(multiWriter, opts)
	}

	cleanup := func() {
		for _, c := range closers {
			c.Close()
		}
	}

	return slog.New(handler), cleanup
}
