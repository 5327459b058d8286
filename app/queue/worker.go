package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"
)

// Handler processes one task's decoded arguments
type Handler func(ctx context.Context, args json.RawMessage) error

// RetryPolicy bounds how often a failed task is re-enqueued
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// retryableError wraps failures that should be attempted again
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks an error as worth retrying under the worker's policy
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether an error was marked with Retryable
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Worker polls the delayed set and dispatches due tasks to registered
// handlers. One worker instance runs per process.
type Worker struct {
	queue        *RedisQueue
	handlers     map[string]Handler
	policy       RetryPolicy
	pollInterval time.Duration
	batchSize    int64
	logger       *log.Logger
	onRetry      func(job string)
}

// NewWorker creates a worker with no registered handlers
func NewWorker(queue *RedisQueue, policy RetryPolicy, pollInterval time.Duration, logger *log.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Worker{
		queue:        queue,
		handlers:     make(map[string]Handler),
		policy:       policy,
		pollInterval: pollInterval,
		batchSize:    50,
		logger:       logger,
	}
}

// Register binds a handler to a job name
func (w *Worker) Register(job string, handler Handler) {
	w.handlers[job] = handler
}

// OnRetry sets a hook invoked each time a task is re-enqueued
func (w *Worker) OnRetry(fn func(job string)) {
	w.onRetry = fn
}

// Start launches the poll loop. The returned cancel function stops it.
func (w *Worker) Start(parent context.Context) func() {
	workerCtx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		w.logger.Printf("Task worker started (poll interval %s)", w.pollInterval)
		for {
			select {
			case <-workerCtx.Done():
				w.logger.Printf("Task worker stopped")
				return
			case <-ticker.C:
				w.drain(workerCtx)
			}
		}
	}()
	return cancel
}

// drain claims and processes every currently due task
func (w *Worker) drain(ctx context.Context) {
	for {
		tasks, err := w.queue.claimDue(ctx, w.batchSize)
		if err != nil {
			w.logger.Printf("Failed to claim due tasks: %v", err)
			return
		}
		if len(tasks) == 0 {
			return
		}
		for _, task := range tasks {
			w.process(ctx, task)
		}
	}
}

func (w *Worker) process(ctx context.Context, task Task) {
	handler, ok := w.handlers[task.Job]
	if !ok {
		w.logger.Printf("No handler registered for job %s, dropping task %s", task.Job, task.ID)
		return
	}

	err := handler(ctx, task.Args)
	if err == nil {
		return
	}

	if !IsRetryable(err) {
		w.logger.Printf("Job %s task %s failed permanently: %v", task.Job, task.ID, err)
		return
	}
	if task.Attempt >= w.policy.MaxAttempts {
		w.logger.Printf("Job %s task %s exhausted %d attempts: %v", task.Job, task.ID, task.Attempt, err)
		return
	}

	retry := task
	retry.Attempt++
	if enqueueErr := w.queue.enqueueTask(ctx, retry, w.policy.Delay); enqueueErr != nil {
		w.logger.Printf("Failed to re-enqueue job %s task %s: %v", task.Job, task.ID, enqueueErr)
		return
	}
	if w.onRetry != nil {
		w.onRetry(task.Job)
	}
	w.logger.Printf("Job %s task %s attempt %d failed, retrying in %s: %v",
		task.Job, task.ID, task.Attempt, w.policy.Delay, err)
}
