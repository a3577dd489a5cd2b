package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of pipeline work: a stored document awaiting analysis.
type Job struct {
	DocumentID  string
	FileURL     string
	Filename    string
	SubmittedAt time.Time
}

// Runner executes the pipeline for a single job.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// Queue fans jobs out to a fixed pool of workers. Each job runs under its
// own timeout so one stuck document cannot wedge a worker forever.
type Queue struct {
	runner     Runner
	jobs       chan Job
	wg         sync.WaitGroup
	log        *slog.Logger
	workers    int
	jobTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

type QueueOption func(*Queue)

func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.jobs = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.jobTimeout = d
		}
	}
}

// NewQueue creates and starts the worker pool.
func NewQueue(runner Runner, logger *slog.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		runner:     runner,
		jobs:       make(chan Job, 64),
		log:        logger,
		workers:    2,
		jobTimeout: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go q.worker(i)
	}
	q.log.Info("queue.started", "workers", q.workers, "capacity", cap(q.jobs))
	return q
}

// Enqueue hands a job to the pool. It fails fast when the queue is shut
// down or full rather than blocking the caller.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The send must happen under the same lock Shutdown closes the channel
	// under, or a racing Shutdown could close it between the check and the
	// send.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.log.Info("queue.enqueued", "document_id", job.DocumentID, "depth", len(q.jobs))
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for in-flight jobs to finish.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	q.log.Info("queue.stopped")
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.process(id, job)
	}
}

func (q *Queue) process(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
	defer cancel()

	start := time.Now()
	q.log.Info("queue.job.start", "worker", workerID, "document_id", job.DocumentID, "queued_ms", time.Since(job.SubmittedAt).Milliseconds())

	if err := q.runner.Run(ctx, job); err != nil {
		q.log.Error("queue.job.failed", "worker", workerID, "document_id", job.DocumentID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return
	}
	q.log.Info("queue.job.done", "worker", workerID, "document_id", job.DocumentID, "elapsed_ms", time.Since(start).Milliseconds())
}
