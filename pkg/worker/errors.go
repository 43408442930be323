package worker

import "errors"

// Sentinel errors for queue operations
var (
	// ErrQueueNotStarted indicates the queue hasn't been started yet
	ErrQueueNotStarted = errors.New("worker queue not started")

	// ErrQueueStopped indicates the queue has been stopped
	ErrQueueStopped = errors.New("worker queue stopped")

	// ErrQueueAlreadyStarted indicates Start() was called on an already-started queue
	ErrQueueAlreadyStarted = errors.New("worker queue already started")

	// ErrQueueFull indicates the queue is at capacity
	ErrQueueFull = errors.New("worker queue full")

	// ErrNilProcessor indicates a nil processor function was provided
	ErrNilProcessor = errors.New("processor function cannot be nil")

	// ErrStopTimeout indicates the worker didn't stop within the timeout
	ErrStopTimeout = errors.New("timeout waiting for worker to stop")
)
