package anc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arloliu/go-anc/logger"
)

// DefaultWorkerQueueSize is the job queue size used when NewWorker is given
// a non-positive size.
const DefaultWorkerQueueSize = 16

// Job is a unit of work executed by a Worker against its Controller.
type Job func(c *Controller) error

type workerJob struct {
	ctx  context.Context // submitter's context
	fn   Job
	done chan error
}

// Worker owns a Controller and runs submitted jobs one at a time, in
// submission order, on a dedicated goroutine.
//
// Callers wait with a context. When the context ends first, Do returns at once
// but the job keeps running to completion in the background: a started
// exchange cannot be interrupted.
type Worker struct {
	ctrl   *Controller
	logger logger.Logger
	jobs   chan *workerJob

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	closeOnce sync.Once
}

// NewWorker starts a worker for ctrl. The worker stops when ctx is cancelled
// or Close is called.
func NewWorker(ctx context.Context, ctrl *Controller, queueSize int) (*Worker, error) {
	if ctrl == nil {
		return nil, errors.New("anc: controller is nil")
	}
	if queueSize <= 0 {
		queueSize = DefaultWorkerQueueSize
	}

	w := &Worker{
		ctrl:    ctrl,
		logger:  ctrl.logger,
		jobs:    make(chan *workerJob, queueSize),
		stopped: make(chan struct{}),
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	go w.loop()

	return w, nil
}

// Controller returns the controller driven by the worker.
func (w *Worker) Controller() *Controller {
	return w.ctrl
}

// Do queues fn and waits for its result or for ctx to end.
//
// A job whose ctx ends before the worker picks it up is dropped without
// running. Once started, a job always runs to completion.
func (w *Worker) Do(ctx context.Context, fn Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-w.stopped:
		return ErrWorkerClosed
	default:
	}

	job := &workerJob{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopped:
		return ErrWorkerClosed
	case w.jobs <- job:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-job.done:
		return err
	case <-w.stopped:
		// the loop may have finished this job right before stopping
		select {
		case err := <-job.done:
			return err
		default:
			return ErrWorkerClosed
		}
	}
}

// Close stops the worker after the running job, if any, returns.
// Queued jobs that have not started are abandoned.
func (w *Worker) Close() {
	w.closeOnce.Do(w.cancel)
	<-w.stopped
}

func (w *Worker) loop() {
	defer close(w.stopped)

	for {
		// Give cancellation priority over queued jobs.
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		select {
		case <-w.ctx.Done():
			return
		case job := <-w.jobs:
			job.done <- w.run(job)
		}
	}
}

func (w *Worker) run(job *workerJob) (err error) {
	if err := job.ctx.Err(); err != nil {
		w.logger.Debug("anc: dropping job abandoned by its caller", "error", err)
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("anc: worker job panicked", "panic", r)
			err = fmt.Errorf("anc: worker job panicked: %v", r)
		}
	}()

	return job.fn(w.ctrl)
}

// Call runs fn on w and returns its value. See Worker.Do.
func Call[T any](ctx context.Context, w *Worker, fn func(c *Controller) (T, error)) (T, error) {
	var result T
	err := w.Do(ctx, func(c *Controller) error {
		v, err := fn(c)
		result = v

		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}
