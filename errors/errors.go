// Package errors provides standardized error handling patterns for speechcore components.
// It includes error classification, standard error variables, and helper functions
// for consistent error wrapping and classification across the runtime.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents runtime and scheduling faults the caller may recover from
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents usage faults: a caller violated a precondition
	ErrorInvalid
	// ErrorFatal represents consistency faults: an internal invariant does not hold
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")
	ErrStopTimeout    = errors.New("timeout waiting for shutdown")

	// Usage faults
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingConfig   = errors.New("missing required configuration")
	ErrNilArgument     = errors.New("required argument is nil")
	ErrNoReader        = errors.New("no audio reader attached")
	ErrNilProcessor    = errors.New("audio processor is nil")
	ErrPumpBusy        = errors.New("audio pump is running")
	ErrSiteMismatch    = errors.New("site does not support the required capability")
	ErrNoThreadService = errors.New("no thread service available from site")
	ErrUnknownFactory  = errors.New("unknown object factory")

	// Runtime faults while streaming
	ErrReadFailed    = errors.New("audio read failed")
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrDataCorrupted = errors.New("data corrupted")

	// Scheduling faults
	ErrTaskFailedToSchedule = errors.New("task failed to schedule")
	ErrTaskCancelled        = errors.New("task cancelled before it ran")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// ConsistencyFault describes a violated internal invariant. It is raised with
// panic, never returned: the offending operation cannot continue.
type ConsistencyFault struct {
	Component string
	Operation string
	Detail    string
}

// Error implements the error interface
func (cf *ConsistencyFault) Error() string {
	return fmt.Sprintf("%s.%s: consistency fault: %s", cf.Component, cf.Operation, cf.Detail)
}

// Fail panics with a ConsistencyFault.
func Fail(component, operation, format string, args ...any) {
	panic(&ConsistencyFault{
		Component: component,
		Operation: operation,
		Detail:    fmt.Sprintf(format, args...),
	})
}

// IsTransient checks if an error is a recoverable runtime or scheduling fault
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrShuttingDown) ||
		errors.Is(err, ErrTaskFailedToSchedule) ||
		errors.Is(err, ErrTaskCancelled) ||
		errors.Is(err, ErrReadFailed) ||
		errors.Is(err, ErrStopTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"temporary",
		"unavailable",
		"busy",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is a consistency fault or otherwise unrecoverable
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var cf *ConsistencyFault
	if errors.As(err, &cf) {
		return true
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if errors.Is(err, ErrDataCorrupted) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"fatal", "panic", "corrupted"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is a usage fault
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	if errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrNilArgument) ||
		errors.Is(err, ErrNoReader) ||
		errors.Is(err, ErrNilProcessor) ||
		errors.Is(err, ErrPumpBusy) ||
		errors.Is(err, ErrSiteMismatch) ||
		errors.Is(err, ErrInvalidFormat) {
		return true
	}

	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient // Default for nil
	}

	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	return ErrorTransient
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}
