package classify

import (
	"fmt"
	"runtime/debug"
)

// ValidationError reports rejected input. Its text is safe to show to clients.
type ValidationError struct {
	Field  string
	Reason string
}

// Invalid constructs a ValidationError.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Describe exposes the validation text as the client message.
func (e *ValidationError) Describe() Description {
	return Description{Message: e.Error()}
}

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError records v with the current stack. Call it from the deferred
// function that recovered, so the stack still includes the panic site.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// described attaches an explicit description to a cause.
type described struct {
	cause error
	desc  Description
}

// WithMessage wraps err with a client-facing message.
func WithMessage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &described{cause: err, desc: Description{Message: msg}}
}

// WithDetails wraps err with client-facing message and detail text.
func WithDetails(err error, msg, details string) error {
	if err == nil {
		return nil
	}
	return &described{cause: err, desc: Description{Message: msg, Details: details}}
}

func (d *described) Error() string { return d.cause.Error() }

func (d *described) Unwrap() error { return d.cause }

func (d *described) Describe() Description { return d.desc }
