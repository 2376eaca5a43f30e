// Package schedcore provides caller-facing error codes for the scheduler.
package schedcore

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Scheduler methods. Callers should compare
// with errors.Is, since some are wrapped with additional context.
var (
	// ErrInvalidArgument is returned when an argument fails validation
	// (e.g. a negative delay, an empty event name).
	ErrInvalidArgument = errors.New("schedcore: invalid argument")

	// ErrNotValid is returned when an operation targets a task handle
	// whose validity flag has already been cleared.
	ErrNotValid = errors.New("schedcore: task is not valid")

	// ErrAlreadyExists is returned by AddFd when the key already maps to
	// a valid task, and by Declare when the event name is already live.
	ErrAlreadyExists = errors.New("schedcore: already exists")

	// ErrNotFound is returned when a lookup (fd key, event name,
	// subscription pair) has no match.
	ErrNotFound = errors.New("schedcore: not found")

	// ErrLimit is returned by AddFd, AddTimeout, AddSignal and Declare
	// when max_tasks would be exceeded.
	ErrLimit = errors.New("schedcore: task limit reached")

	// ErrOutOfMemory names the out-of-memory condition. No method of
	// this package returns it.
	ErrOutOfMemory = errors.New("schedcore: out of memory")

	// ErrBusy is returned by Close when the scheduler is still valid;
	// the caller must call Stop (and let Run/RunOnce return) first.
	ErrBusy = errors.New("schedcore: scheduler is still running")

	// ErrLoopRunning is returned when Run or RunOnce is called on a
	// scheduler that is already being driven by another goroutine.
	ErrLoopRunning = errors.New("schedcore: scheduler is already running")
)

// IOError wraps a failure reported by the platform or signal adapter
// (init, arming a file descriptor, registering a signal, uninit). Poll
// failures are logged, not returned. It implements Unwrap so
// callers can match the underlying cause with errors.Is/errors.As.
type IOError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("schedcore: i/o error: %v", e.Cause)
	}
	return fmt.Sprintf("schedcore: i/o error during %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *IOError) Unwrap() error {
	return e.Cause
}

// wrapIOError is a convenience constructor the Scheduler uses to wrap
// errors returned by its adapters.
func wrapIOError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &IOError{Op: op, Cause: cause}
}
