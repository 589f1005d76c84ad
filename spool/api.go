// Package spool turns file content behind a pluggable read capability into
// response bodies for a static file server.
//
// A body is pulled one frame at a time with Next until io.EOF. Bodies cover
// whole files, single byte ranges, several ranges of one file encoded as
// multipart/byteranges, and the concatenation of several files. Spool does not
// parse Range headers or decide which ranges to serve; callers pass already
// validated ranges.
package spool

import (
	"context"
	"fmt"
	"strconv"
)

// -----------------------------------------------------------------------------
// Storage capability
// -----------------------------------------------------------------------------

// FileAccess opens randomly readable files by name.
//
// Implementations may target local filesystems, memory, or object stores.
// A FileAccess may be shared between streams; every File it returns is owned
// by exactly one stream.
type FileAccess interface {
	// Open returns a handle for the named file.
	// Returns ErrNotFound if the file does not exist and ErrPermission if
	// access is denied. Other failures match ErrIO.
	Open(ctx context.Context, name string) (File, error)
}

// File is an open, randomly readable byte source.
//
// Spool never issues more than one operation at a time against a File.
type File interface {
	// Size returns the total size of the file in bytes.
	Size(ctx context.Context) (int64, error)

	// ReadRange reads up to len(p) bytes starting at off.
	// A short read (0 < n < len(p)) is legal and not an error; callers
	// retry for the rest. ReadRange returns 0, io.EOF only when off is at or
	// past the end of the file.
	ReadRange(ctx context.Context, p []byte, off int64) (int, error)

	// Close releases the handle.
	Close() error
}

// -----------------------------------------------------------------------------
// Byte ranges
// -----------------------------------------------------------------------------

// ByteRange is the half-open window [Start, End) of a file.
type ByteRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of bytes in the range.
func (r ByteRange) Len() int64 { return r.End - r.Start }

// Validate reports ErrInvalidRange unless 0 <= Start <= End <= size.
// A negative size skips the upper bound check.
func (r ByteRange) Validate(size int64) error {
	if r.Start < 0 || r.End < r.Start || (size >= 0 && r.End > size) {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrInvalidRange, r.Start, r.End, size)
	}
	return nil
}

// ContentRange formats the range as a Content-Range value for a file of the
// given size. The end position is inclusive. An empty range has no first or
// last byte and renders as "bytes */size".
func (r ByteRange) ContentRange(size int64) string {
	b := make([]byte, 0, 48)
	b = append(b, "bytes "...)
	if r.Len() <= 0 {
		b = append(b, '*')
	} else {
		b = strconv.AppendInt(b, r.Start, 10)
		b = append(b, '-')
		b = strconv.AppendInt(b, r.End-1, 10)
	}
	b = append(b, '/')
	b = strconv.AppendInt(b, size, 10)
	return string(b)
}

// Source names one file of a multi-file body.
type Source struct {
	// Name is passed to FileAccess.Open.
	Name string `json:"name"`

	// Range optionally restricts the source to a window of the file.
	// Nil means the whole file.
	Range *ByteRange `json:"range,omitempty"`
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a requested file does not exist.
	ErrNotFound = errNotFound{}

	// ErrPermission indicates access to a file was denied.
	ErrPermission = errPermission{}

	// ErrIO indicates a storage read or metadata operation failed.
	ErrIO = errIO{}

	// ErrInvalidRange indicates a byte range outside the file or with End < Start.
	ErrInvalidRange = errInvalidRange{}

	// ErrInvalidPath indicates a file name that is empty or escapes the root.
	ErrInvalidPath = errInvalidPath{}

	// ErrInvalidBoundary indicates a multipart boundary that is empty, too
	// long, or contains line breaks.
	ErrInvalidBoundary = errInvalidBoundary{}

	// ErrClosed indicates an operation on a closed file.
	ErrClosed = errClosed{}

	// ErrInvalidLimiter indicates a rate limiter that can never grant a read.
	ErrInvalidLimiter = errInvalidLimiter{}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errPermission struct{}

func (errPermission) Error() string { return "permission denied" }

type errIO struct{}

func (errIO) Error() string { return "i/o failure" }

type errInvalidRange struct{}

func (errInvalidRange) Error() string { return "invalid byte range" }

type errInvalidPath struct{}

func (errInvalidPath) Error() string { return "invalid path" }

type errInvalidBoundary struct{}

func (errInvalidBoundary) Error() string { return "invalid multipart boundary" }

type errClosed struct{}

func (errClosed) Error() string { return "file already closed" }

type errInvalidLimiter struct{}

func (errInvalidLimiter) Error() string { return "invalid rate limiter" }

// IOError records a failed storage operation and the file it concerned.
// It matches ErrIO with errors.Is and unwraps to the underlying cause.
type IOError struct {
	Op   string
	Name string
	Err  error
}

func (e *IOError) Error() string {
	if e.Name == "" {
		return "spool: " + e.Op + ": " + e.Err.Error()
	}
	return "spool: " + e.Op + " " + e.Name + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

// Is reports whether target is ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }
