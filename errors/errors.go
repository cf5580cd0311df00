// Package errors provides standardized error handling for the Fundable
// streaming engine. It includes error classification, the protocol error
// taxonomy as sentinel variables, and helper functions for consistent error
// wrapping across the system.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried by the caller
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or an illegal state transition
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
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

// Protocol error taxonomy. Every mutating engine operation fails with exactly
// one of these; matching is via errors.Is so callers can branch on the
// condition regardless of wrapping depth.
var (
	ErrAlreadyInitialized       = errors.New("contract already initialized")
	ErrNotInitialized           = errors.New("contract not initialized")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidTimeRange         = errors.New("invalid time range")
	ErrStreamNotFound           = errors.New("stream not found")
	ErrStreamNotActive          = errors.New("stream not active")
	ErrStreamNotPaused          = errors.New("stream not paused")
	ErrStreamCannotBeCanceled   = errors.New("stream cannot be canceled")
	ErrInsufficientWithdrawable = errors.New("insufficient withdrawable amount")
	ErrTransferFailed           = errors.New("token transfer failed")
	ErrFeeTooHigh               = errors.New("fee rate exceeds maximum")
	ErrInvalidRecipient         = errors.New("invalid recipient")
	ErrDepositExceedsTotal      = errors.New("deposit exceeds stream total")
	ErrArithmeticOverflow       = errors.New("arithmetic overflow")
	ErrInvalidDelegate          = errors.New("invalid delegate")
)

// Infrastructure error variables shared by the storage and transport layers.
var (
	ErrKeyNotFound        = errors.New("key not found")
	ErrKeyExists          = errors.New("key already exists")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingConfig      = errors.New("missing required configuration")
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

// IsTransient checks if an error is transient and may be retried by the caller
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrTransferFailed)
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrArithmeticOverflow)
}

// IsInvalid checks if an error is due to invalid input or an illegal transition
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrInvalidDelegate) ||
		errors.Is(err, ErrInvalidRecipient) ||
		errors.Is(err, ErrDepositExceedsTotal) ||
		errors.Is(err, ErrFeeTooHigh) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrAlreadyInitialized) ||
		errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrStreamNotFound) ||
		errors.Is(err, ErrStreamNotActive) ||
		errors.Is(err, ErrStreamNotPaused) ||
		errors.Is(err, ErrStreamCannotBeCanceled) ||
		errors.Is(err, ErrInsufficientWithdrawable)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	return ErrorTransient
}

// newClassified creates a new classified error.
// Internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
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
// Re-exported so callers don't need to import both this package and stdlib errors.
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
