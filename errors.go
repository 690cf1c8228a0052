package linedb

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// A read failure ended the session before the end of the data
	ErrReadAborted error = errors.New("read aborted")
	// The identifier names a location no resolver knows how to open
	ErrUnsupportedSource error = errors.New("unsupported source")
	// The record markers are not usable
	ErrInvalidMarker error = errors.New("invalid marker")
	// Lookup of something that is not stored
	ErrNotFound error = errors.New("not found")
)

// A source that could not be resolved into a stream of lines
type SourceError struct {
	// Position of the source in the input list
	Index int
	// Identifier of the source
	ID  string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// A failure while pulling lines out of an open source.
// It matches ErrReadAborted with errors.Is.
type ReadError struct {
	Index int
	ID    string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%v: source %d (%s): %v", ErrReadAborted, e.Index, e.ID, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func (e *ReadError) Is(target error) bool {
	return target == ErrReadAborted
}
