// Package errors provides standardized error handling for StatusKit.
// It defines the sentinel errors used across the schema, namespace and
// client packages, an error classification scheme, and helper functions
// for consistent error wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or lookups
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

// Standard error variables for common conditions
var (
	// Schema loading errors. All of these are raised at load time and
	// abort catalog construction.
	ErrMissingNode      = errors.New("schema file missing 'node' field")
	ErrUnresolvedRef    = errors.New("unresolved $ref")
	ErrRefCycle         = errors.New("reference cycle detected")
	ErrRefOutsideRoot   = errors.New("$ref resolves outside the schema root")
	ErrSchemaNotFound   = errors.New("schema directory not found")
	ErrInvalidSchema    = errors.New("invalid schema document")
	ErrOneOfAmbiguous   = errors.New("oneOf matches more than one branch")
	ErrOneOfUnsatisfied = errors.New("oneOf matches no branch")

	// Topic lookup errors. ErrUnknownTopic means the topic exists nowhere
	// in the catalog; ErrNotSubscribed means it exists but this client
	// did not subscribe to it.
	ErrUnknownTopic  = errors.New("unknown topic")
	ErrNotSubscribed = errors.New("client is not subscribed to topic")
	ErrUnknownPath   = errors.New("path not present in namespace")

	// Namespace value access errors
	ErrNotPrimitive = errors.New("node does not hold a primitive value")
	ErrWrongType    = errors.New("value has incompatible type")
	ErrNoValue      = errors.New("node holds no value yet")

	// Rendering errors
	ErrBadRenderSpec = errors.New("unknown or malformed render specifier")

	// Transport and lifecycle errors
	ErrNotConnected       = errors.New("transport not connected")
	ErrClosed             = errors.New("client is closed")
	ErrSubscriptionFailed = errors.New("subscription failed")
	ErrReceiveTimeout     = errors.New("receive timed out")

	// Data processing errors
	ErrInvalidPayload = errors.New("invalid message payload")
	ErrShapeMismatch  = errors.New("update shape does not match node kind")
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

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrReceiveTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
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

	return errors.Is(err, ErrMissingNode) ||
		errors.Is(err, ErrUnresolvedRef) ||
		errors.Is(err, ErrRefCycle) ||
		errors.Is(err, ErrRefOutsideRoot) ||
		errors.Is(err, ErrSchemaNotFound) ||
		errors.Is(err, ErrInvalidSchema) ||
		errors.Is(err, ErrClosed)
}

// IsInvalid checks if an error is due to invalid input or a bad lookup
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrUnknownTopic) ||
		errors.Is(err, ErrNotSubscribed) ||
		errors.Is(err, ErrUnknownPath) ||
		errors.Is(err, ErrNotPrimitive) ||
		errors.Is(err, ErrWrongType) ||
		errors.Is(err, ErrNoValue) ||
		errors.Is(err, ErrBadRenderSpec) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrShapeMismatch) ||
		errors.Is(err, ErrOneOfAmbiguous) ||
		errors.Is(err, ErrOneOfUnsatisfied)
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

	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

// newClassified creates a new classified error.
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
