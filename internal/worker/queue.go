package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/log"
)

// ErrStopped is returned by Submit once the queue is stopping or stopped.
var ErrStopped = errors.New("write queue stopped")

// Job is one store write. Done receives the result of Run and is called on
// the queue goroutine before the next job starts.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
	Done func(err error)
}

// WriteQueue runs jobs one at a time in submission order. Submit never
// blocks, so callers can apply optimistic changes and move on while the
// writes complete in the background.
type WriteQueue struct {
	name   string
	logger *log.Logger

	mu          sync.Mutex
	running     bool
	stopping    bool
	jobs        []Job
	outstanding int
	idle        chan struct{}
	wake        chan struct{}
	stopCh      chan struct{}
	doneCh      chan struct{}
}

func NewWriteQueue(name string, logger *log.Logger) *WriteQueue {
	idle := make(chan struct{})
	close(idle)
	return &WriteQueue{
		name:   name,
		logger: log.OrDiscard(logger).WithComponent(log.ComponentWorker).With(log.FieldCollection, name),
		idle:   idle,
		wake:   make(chan struct{}, 1),
	}
}

// Start begins the processing loop. Jobs run with ctx; cancelling it makes
// the remaining writes fail instead of dropping them.
func (q *WriteQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("write queue %s is already running", q.name)
	}
	if q.stopping {
		return ErrStopped
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})

	go q.runLoop(ctx)

	q.logger.Debug("Write queue started")
	return nil
}

// Submit appends job to the queue.
func (q *WriteQueue) Submit(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running || q.stopping {
		return ErrStopped
	}
	q.jobs = append(q.jobs, job)
	if q.outstanding == 0 {
		q.idle = make(chan struct{})
	}
	q.outstanding++

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of submitted jobs that have not finished.
func (q *WriteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Flush waits until every job submitted so far has finished.
func (q *WriteQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects new jobs, lets the queued ones finish and waits for the loop
// to exit.
func (q *WriteQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.stopping = true
		q.mu.Unlock()
		return nil
	}
	if !q.stopping {
		q.stopping = true
		close(q.stopCh)
	}
	done := q.doneCh
	q.mu.Unlock()

	select {
	case <-done:
		q.logger.Debug("Write queue stopped")
	case <-ctx.Done():
		q.logger.Warn("Write queue stop timed out", "queued", q.Len())
		return ctx.Err()
	}

	q.mu.Lock()
	q.running = false
	q.mu.Unlock()
	return nil
}

// IsRunning returns whether the loop is accepting jobs
func (q *WriteQueue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running && !q.stopping
}

func (q *WriteQueue) runLoop(ctx context.Context) {
	defer close(q.doneCh)

	for {
		if job, ok := q.next(); ok {
			q.run(ctx, job)
			continue
		}
		select {
		case <-q.wake:
		case <-q.stopCh:
			for {
				job, ok := q.next()
				if !ok {
					return
				}
				q.run(ctx, job)
			}
		}
	}
}

func (q *WriteQueue) next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = Job{}
	q.jobs = q.jobs[1:]
	return job, true
}

func (q *WriteQueue) run(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		q.logger.Debug("Write failed", log.FieldOperation, job.Name, log.FieldError, err)
	} else {
		q.logger.Debug("Write completed", log.FieldOperation, job.Name, log.FieldDuration, time.Since(start).Milliseconds())
	}
	if job.Done != nil {
		job.Done(err)
	}

	q.mu.Lock()
	q.outstanding--
	if q.outstanding == 0 {
		close(q.idle)
	}
	q.mu.Unlock()
}
