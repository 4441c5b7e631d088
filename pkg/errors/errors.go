// Package errors provides structured error handling for evconv with error
// categorization, key-value context and automatic stack capture.
//
// Every failure in a conversion run is fatal: there is no retry, skip or
// resumption policy. The ErrorType therefore exists for diagnosis and exit
// reporting, not for recovery decisions. The categories mirror the failure
// taxonomy of the conversion layer:
//
//   - ErrorTypeOpen: a source or destination could not be acquired
//   - ErrorTypeDecode: a source record could not be mapped to an Event
//   - ErrorTypeEncode: a destination rejected a record or a write failed
//   - ErrorTypeResource: a native handle could not be allocated or released
//
// # Basic Usage
//
//	if err := stmt.Close(); err != nil {
//	    return errors.Wrap(err, errors.ErrorTypeResource, "finalizing insert statement").
//	        WithDetail("path", w.path)
//	}
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType categorizes a failure for diagnosis and exit reporting.
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations.
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors (unknown format,
	// missing path, invalid codec).
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeOpen represents open-time errors: invalid path, unreadable
	// or corrupt source, unwritable destination.
	ErrorTypeOpen ErrorType = "open"
	// ErrorTypeDecode represents a source record that cannot be mapped
	// into the canonical event.
	ErrorTypeDecode ErrorType = "decode"
	// ErrorTypeEncode represents a destination rejecting a record or a
	// failed write.
	ErrorTypeEncode ErrorType = "encode"
	// ErrorTypeResource represents native handle acquisition or release
	// failures (file descriptors, database statements, schema objects).
	ErrorTypeResource ErrorType = "resource"
	// ErrorTypeCapability represents use of an operation a back-end does
	// not support.
	ErrorTypeCapability ErrorType = "capability"
)

// Error is a structured error with a category, a message, an optional
// cause and key-value details. The call stack is captured at creation.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single frame of the captured call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As
// over the chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key-value detail to the error. It returns the
// receiver so calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error with the given type and message, capturing the call
// stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates an error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err with a category and message, preserving err as the cause.
// If err is already a structured Error its original stack is kept. Returns
// nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType reports whether err carries the given category anywhere in its
// chain.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
