// Package errors classifies failures as transient (retry), invalid (reject
// input) or fatal (stop). Classification survives wrapping with %w.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Class is the handling category of an error.
type Class int

const (
	// Transient errors may succeed on retry (timeouts, unavailable stores).
	Transient Class = iota
	// Invalid errors are caused by the input and must not be retried.
	Invalid
	// Fatal errors are unrecoverable for the current operation.
	Fatal
)

// String returns the string representation of Class.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Invalid:
		return "invalid"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with its class and origin.
type ClassifiedError struct {
	Class     Class
	Component string
	Operation string
	Err       error
}

// Error implements the error interface using "component.operation: err".
func (e *ClassifiedError) Error() string {
	if e.Component == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s.%s: %v", e.Component, e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

func wrap(class Class, err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Component: component, Operation: operation, Err: err}
}

// WrapTransient marks err as retryable.
func WrapTransient(err error, component, operation string) error {
	return wrap(Transient, err, component, operation)
}

// WrapInvalid marks err as caused by bad input.
func WrapInvalid(err error, component, operation string) error {
	return wrap(Invalid, err, component, operation)
}

// WrapFatal marks err as unrecoverable.
func WrapFatal(err error, component, operation string) error {
	return wrap(Fatal, err, component, operation)
}

// ClassOf returns the class of the outermost classified error in the chain.
// Deadline overruns are transient; everything unclassified is fatal.
func ClassOf(err error) Class {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	return Fatal
}

// IsTransient reports whether err should be retried. Cancellation is never
// transient: a cancelled caller is not interested in a retry.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return ClassOf(err) == Transient
}

// IsInvalid reports whether err was caused by the input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	return errors.As(err, &ce) && ce.Class == Invalid
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
