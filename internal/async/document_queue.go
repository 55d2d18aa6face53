package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/repository"
)

type DocumentQueue struct {
	ext      Extractor
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	attempts repository.AttemptRepository
	onResult func(Result)

	ch      chan Job
	wg      sync.WaitGroup
	once    sync.Once
	done    chan struct{}
	senders sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type Option func(*DocumentQueue)

func WithWorkers(n int) Option {
	return func(q *DocumentQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *DocumentQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

// WithProcessTimeout caps a single extraction on top of the service's own
// page-based deadline.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *DocumentQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithLedger records every job as an extraction attempt.
func WithLedger(r repository.AttemptRepository) Option {
	return func(q *DocumentQueue) { q.attempts = r }
}

// WithResultHandler is called from the worker goroutine after each job.
func WithResultHandler(fn func(Result)) Option {
	return func(q *DocumentQueue) { q.onResult = fn }
}

func NewDocumentQueue(ext Extractor, logger *slog.Logger, opts ...Option) *DocumentQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &DocumentQueue{
		ext:     ext,
		logger:  logger,
		workers: 2,
		timeout: 20 * time.Minute,
		ch:      make(chan Job, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *DocumentQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)
				for job := range q.ch {
					res := q.process(job)
					if res.Err != nil {
						q.logger.Error("recording attempt failed", "worker_id", workerID, "job_id", job.ID, "error", res.Err)
					} else {
						q.logger.Info("document processed", "worker_id", workerID, "job_id", job.ID,
							"name", job.File.Name, "status", res.Outcome.Status(), "method", res.Outcome.Diagnostics.Method)
					}
					if q.onResult != nil {
						q.onResult(res)
					}
				}
				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *DocumentQueue) process(job Job) (res Result) {
	res.Job = job
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	var attempt *repository.Attempt
	if q.attempts != nil {
		var err error
		attempt, err = q.attempts.Start(ctx, job.HashHex, job.File.Name, extract.Classify(job.File))
		if err != nil {
			res.Err = fmt.Errorf("start attempt: %w", err)
		} else {
			res.AttemptID = attempt.ID
		}
	}

	res.Outcome = q.ext.Extract(ctx, job.File)

	if attempt != nil {
		// the extraction context may be spent; the ledger write gets its own
		wctx, wcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer wcancel()
		if err := q.attempts.Finish(wctx, attempt.ID, repository.NewOutcome(res.Outcome)); err != nil {
			res.Err = fmt.Errorf("finish attempt: %w", err)
		}
	}
	return res
}

// Enqueue blocks while the queue is full, until ctx is done or the queue
// shuts down.
func (q *DocumentQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID)
		return ErrClosed
	}
	q.senders.Add(1)
	q.mu.RUnlock()
	defer q.senders.Done()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued document", "job_id", job.ID, "name", job.File.Name)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "job_id", job.ID)
	select {
	case q.ch <- job:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
// Enqueue calls blocked on a full queue return ErrClosed.
func (q *DocumentQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	// ch closes only once no sender can still write to it
	q.senders.Wait()
	close(q.ch)

	drained := make(chan struct{})
	go func() { defer close(drained); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-drained:
		q.logger.Info("queue drained, shutdown complete")
	}
}
