package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Job represents a task to be executed by a worker
type Job func(ctx context.Context) error

// WorkerPool manages a pool of workers executing pipeline runs off the
// webhook hot path.
type WorkerPool struct {
	queue   chan Job
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// ErrQueueFull is returned when the job queue is full
var ErrQueueFull = errors.New("worker pool queue is full")

// NewWorkerPool creates a new WorkerPool
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:   make(chan Job, queueSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers
func (p *WorkerPool) Start() {
	slog.Info("starting worker pool", "workers", p.workers, "queue_size", cap(p.queue))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the queue, drains remaining jobs and waits for the workers.
// Submissions arriving after Stop are rejected, not panicked on; a late
// debounce timer may still fire during shutdown.
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool")
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	slog.Info("worker pool stopped")
}

// Submit adds a job to the queue. Returns ErrQueueFull if the queue is full
// or the pool is shutting down.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueFull
	}
	select {
	case p.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for job := range p.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in worker", "worker_id", id, "panic", r)
				}
			}()

			if err := job(p.ctx); err != nil {
				slog.Error("job execution failed", "worker_id", id, "error", err)
			}
		}()
	}
}
