package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every package. Callers test with errors.Is.
// Absence is never an error: lookups return nil documents or empty slices.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotUnique       = errors.New("not unique")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrIO              = errors.New("io failure")
	ErrCorruptJournal  = errors.New("corrupt journal")
)

// IOError wraps a file system failure with the path it happened on
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is makes every IOError match ErrIO
func (e *IOError) Is(target error) bool {
	return target == ErrIO
}

// NewIOError builds an IOError
func NewIOError(op, path string, err error) error {
	return &IOError{Op: op, Path: path, Err: err}
}

// InvalidArgument returns an ErrInvalidArgument carrying a message
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
