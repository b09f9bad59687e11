package fluxq

import (
	"errors"
	"fmt"
)

// Sentinel errors returned (or wrapped) by queries.
var (
	// ErrArgumentNull is reported when a required consumable, link or function is nil.
	ErrArgumentNull = errors.New("argument is nil")
	// ErrArgumentOutOfRange is reported for sizes and counts outside their valid range.
	ErrArgumentOutOfRange = errors.New("argument out of range")
	// ErrNoElements is returned by terminal operations that need at least one element.
	ErrNoElements = errors.New("sequence contains no elements")
	// ErrOverflow is returned when a checked integer accumulation overflows.
	ErrOverflow = errors.New("arithmetic overflow")
	// ErrNotSupported is returned by operations an iterator cannot perform, such as Reset.
	ErrNotSupported = errors.New("operation not supported")
)

// ArgumentError describes an invalid argument passed to a builder or terminal operation.
type ArgumentError struct {
	// Name is the parameter name
	Name string
	// Err is ErrArgumentNull or ErrArgumentOutOfRange
	Err error
}

// Error implements the error interface for ArgumentError.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error for compatibility with errors.Is and errors.As.
func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// NewArgumentError creates a new ArgumentError.
func NewArgumentError(name string, err error) *ArgumentError {
	return &ArgumentError{
		Name: name,
		Err:  err,
	}
}

// SourceError wraps a failure raised by a source while opening, advancing or closing it.
type SourceError struct {
	// Op is one of "open", "next" or "close"
	Op string
	// OriginalError is the underlying error that occurred
	OriginalError error
}

// Error implements the error interface for SourceError.
func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Op, e.OriginalError)
}

// Unwrap returns the underlying error for compatibility with errors.Is and errors.As.
func (e *SourceError) Unwrap() error {
	return e.OriginalError
}

// NewSourceError creates a new SourceError with the provided details.
func NewSourceError(op string, err error) *SourceError {
	return &SourceError{
		Op:            op,
		OriginalError: err,
	}
}

// OverflowError reports which accumulation overflowed. It matches ErrOverflow
// under errors.Is.
type OverflowError struct {
	// Kind names the accumulator, e.g. "int32 sum"
	Kind string
}

// Error implements the error interface for OverflowError.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, ErrOverflow)
}

// Unwrap returns ErrOverflow.
func (e *OverflowError) Unwrap() error {
	return ErrOverflow
}

// NewOverflowError creates a new OverflowError for the given accumulator kind.
func NewOverflowError(kind string) *OverflowError {
	return &OverflowError{Kind: kind}
}

func requireNotNil(name string, isNil bool) {
	if isNil {
		panic(NewArgumentError(name, ErrArgumentNull))
	}
}
