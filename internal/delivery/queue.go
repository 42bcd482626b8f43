package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/fanout/pkg/logger"
	"github.com/charlesng35/fanout/pkg/metrics"
)

var (
	// ErrQueueFull is returned when no buffer slot is free. Submit never blocks.
	ErrQueueFull = errors.New("dispatch queue: full")
	// ErrQueueClosed is returned after Close has been called.
	ErrQueueClosed = errors.New("dispatch queue: closed")
)

const (
	defaultWorkers    = 4
	defaultQueueSize  = 256
	defaultJobTimeout = 2 * time.Minute
)

// JobHandler processes one dequeued job.
type JobHandler interface {
	Handle(ctx context.Context, job Job)
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, job Job)

// Handle calls f.
func (f JobHandlerFunc) Handle(ctx context.Context, job Job) { f(ctx, job) }

// QueueConfig sizes the worker pool.
type QueueConfig struct {
	Workers    int
	Size       int
	JobTimeout time.Duration
}

// Queue is a bounded worker pool that runs dispatch jobs off the request path.
type Queue struct {
	handler    JobHandler
	jobs       chan Job
	workers    int
	jobTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool

	log *zap.Logger
}

// NewQueue constructs a queue. Call Start to launch the workers.
func NewQueue(cfg QueueConfig, handler JobHandler) (*Queue, error) {
	if handler == nil {
		return nil, errors.New("dispatch queue: handler is required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	size := cfg.Size
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		handler:    handler,
		jobs:       make(chan Job, size),
		workers:    workers,
		jobTimeout: timeout,
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.WithModule("dispatch-queue"),
	}, nil
}

// Start launches the worker goroutines. It is safe to call more than once.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.log.Info("dispatch workers started", zap.Int("workers", q.workers), zap.Int("capacity", cap(q.jobs)))
}

// Submit enqueues job without blocking.
func (q *Queue) Submit(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.DroppedJobs.WithLabelValues("closed").Inc()
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		metrics.DispatchQueueDepth.Set(float64(len(q.jobs)))
		return nil
	default:
		metrics.DroppedJobs.WithLabelValues("full").Inc()
		return ErrQueueFull
	}
}

// Len reports the number of jobs waiting for a worker.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Cap reports the buffer size.
func (q *Queue) Cap() int {
	return cap(q.jobs)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Close stops accepting jobs and waits for the workers to drain the buffer. When ctx
// expires first, in-flight jobs are cancelled and ctx's error is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()

	for job := range q.jobs {
		metrics.DispatchQueueDepth.Set(float64(len(q.jobs)))
		q.run(id, job)
	}
}

func (q *Queue) run(id int, job Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.log.Error("dispatch job panicked",
				zap.Int("worker", id),
				zap.String("notification_id", job.Payload.NotificationID),
				zap.Any("panic", r),
			)
		}
	}()

	q.handler.Handle(ctx, job)
}
