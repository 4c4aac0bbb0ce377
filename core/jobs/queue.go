// Package jobs runs background work on a small in-process worker pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/logger"
)

var (
	// ErrQueueFull is returned when the buffer has no room for another job.
	ErrQueueFull = errors.New("jobs: queue full")
	// ErrQueueClosed is returned for jobs enqueued before Start or after Stop.
	ErrQueueClosed = errors.New("jobs: queue not running")
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  any
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
// MaxRetries of 0 disables retries.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// Queue is a buffered job dispatcher backed by goroutines. Stop drains
// the jobs already accepted before returning.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
}

// NewQueue builds a queue; call Start before enqueueing.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		jobs:    make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || q.stopped {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.running = true
	logger.Info(ctx, logger.CompJobs, "queue.start",
		slog.String("queue", q.name),
		slog.Int("workers", q.cfg.Workers),
	)
}

// Stop refuses new jobs, waits until the accepted ones finish or ctx expires,
// then releases the workers.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("queue %s: drain interrupted: %w", q.name, ctx.Err())
	}
	q.cancel()
	logger.Info(ctx, logger.CompJobs, "queue.stop",
		slog.String("queue", q.name),
		slog.String("status", logger.Status(err)),
	)
	return err
}

// Enqueue accepts a job without blocking and returns its id.
func (q *Queue) Enqueue(job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return "", fmt.Errorf("queue %s: %w", q.name, ErrQueueClosed)
	}
	select {
	case q.jobs <- job:
		return job.ID, nil
	default:
		return "", fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(job)
	}
}

func (q *Queue) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(q.ctx, logger.CompJobs, "job.panic",
				slog.String("queue", q.name),
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
			)
		}
	}()

	start := time.Now()
	err := q.handler(q.ctx, job)
	attrs := []slog.Attr{
		slog.String("queue", q.name),
		slog.String("job_id", job.ID),
		slog.String("type", job.Type),
		slog.Int("attempts", job.Attempt+1),
		slog.Duration("duration", logger.Took(start)),
	}
	if err == nil {
		logger.Debug(q.ctx, logger.CompJobs, "job.done", attrs...)
		return
	}
	q.handleFailure(job, err, attrs)
}

func (q *Queue) handleFailure(job Job, err error, attrs []slog.Attr) {
	attrs = append(attrs, slog.String("err", err.Error()))
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		logger.Error(q.ctx, logger.CompJobs, "job.failed", attrs...)
		return
	}
	logger.Warn(q.ctx, logger.CompJobs, "job.retry", attrs...)

	go func(j Job) {
		timer := time.NewTimer(q.cfg.RetryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if _, err := q.Enqueue(j); err != nil {
				logger.Error(q.ctx, logger.CompJobs, "job.requeue",
					slog.String("queue", q.name),
					slog.String("job_id", j.ID),
					slog.String("err", err.Error()),
				)
			}
		}
	}(job)
}
