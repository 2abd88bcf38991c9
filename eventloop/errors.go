package eventloop

import (
	"errors"
	"fmt"

	"github.com/joeycumines/go-faultcatalog/fault"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run() is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("eventloop: loop has been terminated")

	// ErrTimerNotFound is returned by [Loop.CancelTimer] for unknown or already fired timers.
	ErrTimerNotFound = errors.New("eventloop: timer not found")

	// ErrHookRegistered is returned when registering a hook under [PolicyReject]
	// while one is already registered for the category.
	ErrHookRegistered = errors.New("eventloop: hook already registered")

	// ErrGoexit is used to reject a promise when the goroutine exits via runtime.Goexit().
	ErrGoexit = errors.New("eventloop: goroutine exited via runtime.Goexit")
)

// FatalError is returned by [Loop.Run] when an uncaught synchronous fault
// terminated the loop.
type FatalError struct {
	Fault    *fault.Fault
	ExitCode int
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("eventloop: uncaught fault (exit status %d): %v", e.ExitCode, e.Fault)
}

// Unwrap returns the uncaught fault.
func (e *FatalError) Unwrap() error {
	if e.Fault == nil {
		return nil
	}
	return e.Fault
}

// AggregateError represents an error thrown when [JS.Any] fails because
// all input promises were rejected.
//
// The Errors field contains the rejection reasons from all failed promises,
// preserving the order of the input promises array.
type AggregateError struct {
	// Message matches standard JS AggregateError property
	Message string
	// Errors contains all rejection reasons from failed promises.
	Errors []error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "All promises were rejected"
}

// Unwrap returns the errors slice for multi-error unwrapping (Go 1.20+).
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// ErrorWrapper wraps a non-error rejection reason as an error.
type ErrorWrapper struct {
	// Value is the original non-error rejection reason.
	Value Result
}

// Error implements the error interface.
func (e *ErrorWrapper) Error() string {
	return fmt.Sprintf("%v", e.Value)
}

// reasonError converts a rejection reason into an error.
func reasonError(reason Result) error {
	if err, ok := reason.(error); ok {
		return err
	}
	return &ErrorWrapper{Value: reason}
}

// reasonFault converts a rejection reason into a fault, preserving an
// existing fault's identity.
func reasonFault(reason Result) *fault.Fault {
	if err, ok := reason.(error); ok {
		if f := fault.Wrap(err); f != nil {
			return f
		}
	}
	return fault.FromPanic(reason)
}
