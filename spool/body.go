package spool

import (
	"context"
	"fmt"
	"io"
)

// Kind identifies which stream a Body wraps.
type Kind uint8

const (
	// KindEmpty is a body with no bytes.
	KindEmpty Kind = iota
	// KindFull is a whole file.
	KindFull
	// KindRange is one byte range of a file.
	KindRange
	// KindMultiRange is several byte ranges of a file as multipart/byteranges.
	KindMultiRange
	// KindMultiFiles is the concatenation of several files.
	KindMultiFiles
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindFull:
		return "full"
	case KindRange:
		return "range"
	case KindMultiRange:
		return "multi-range"
	case KindMultiFiles:
		return "multi-files"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Body is the response body handed to the serving layer. It wraps exactly
// one of the stream types, or nothing, and forwards every pull to it
// unchanged.
//
// The zero Body is empty.
type Body struct {
	kind  Kind
	full  *FileStream
	rng   *RangeStream
	multi *MultiRangeStream
	files *MultiFileStream
}

// Empty returns a body with no bytes.
func Empty() *Body { return &Body{kind: KindEmpty} }

// Full returns a body serving a whole file. s must not be nil.
func Full(s *FileStream) *Body { return &Body{kind: KindFull, full: s} }

// Range returns a body serving one byte range. s must not be nil.
func Range(s *RangeStream) *Body { return &Body{kind: KindRange, rng: s} }

// MultiRange returns a body serving several byte ranges. s must not be nil.
func MultiRange(s *MultiRangeStream) *Body { return &Body{kind: KindMultiRange, multi: s} }

// MultiFiles returns a body serving several files back to back. s must not
// be nil.
func MultiFiles(s *MultiFileStream) *Body { return &Body{kind: KindMultiFiles, files: s} }

// Kind reports which stream the body wraps.
func (b *Body) Kind() Kind { return b.kind }

// Next returns the next frame of the wrapped stream, io.EOF at end of
// stream, or the stream's failure.
func (b *Body) Next(ctx context.Context) ([]byte, error) {
	switch b.kind {
	case KindEmpty:
		return nil, io.EOF
	case KindFull:
		return b.full.Next(ctx)
	case KindRange:
		return b.rng.Next(ctx)
	case KindMultiRange:
		return b.multi.Next(ctx)
	case KindMultiFiles:
		return b.files.Next(ctx)
	default:
		panic("spool: invalid body kind " + b.kind.String())
	}
}

// Len returns the exact number of bytes the body emits. ok is false when
// the length is not known yet (a multi-file body with unopened sources).
func (b *Body) Len() (n int64, ok bool) {
	switch b.kind {
	case KindEmpty:
		return 0, true
	case KindFull:
		return b.full.Len(), true
	case KindRange:
		return b.rng.Len(), true
	case KindMultiRange:
		return b.multi.Len(), true
	case KindMultiFiles:
		return b.files.Len()
	default:
		panic("spool: invalid body kind " + b.kind.String())
	}
}

// Close releases every file the body holds. It is safe to call more than
// once.
func (b *Body) Close() error {
	switch b.kind {
	case KindEmpty:
		return nil
	case KindFull:
		return b.full.Close()
	case KindRange:
		return b.rng.Close()
	case KindMultiRange:
		return b.multi.Close()
	case KindMultiFiles:
		return b.files.Close()
	default:
		panic("spool: invalid body kind " + b.kind.String())
	}
}

// Stream returns the wrapped stream, or nil for an empty body. Use a type
// switch on the result to reach variant-specific methods such as
// MultiRangeStream.ContentType.
func (b *Body) Stream() any {
	switch b.kind {
	case KindFull:
		return b.full
	case KindRange:
		return b.rng
	case KindMultiRange:
		return b.multi
	case KindMultiFiles:
		return b.files
	default:
		return nil
	}
}

// -----------------------------------------------------------------------------
// Body selection
// -----------------------------------------------------------------------------

// NewRangesBody picks the body for serving ranges of f: the whole file when
// ranges is empty, a single range stream for one range, and a multipart
// stream for several. WithBoundary is ignored unless a multipart stream is
// built.
//
// Ownership of f follows NewFileStream.
func NewRangesBody(ctx context.Context, f File, ranges []ByteRange, contentType string, opts ...Option) (*Body, error) {
	return newRangesBody(ctx, f, "", ranges, contentType, opts)
}

// OpenRangesBody opens name through fa and picks its body like NewRangesBody.
func OpenRangesBody(ctx context.Context, fa FileAccess, name string, ranges []ByteRange, contentType string, opts ...Option) (*Body, error) {
	f, err := fa.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return newRangesBody(ctx, f, name, ranges, contentType, opts)
}

func newRangesBody(ctx context.Context, f File, name string, ranges []ByteRange, contentType string, opts []Option) (*Body, error) {
	switch len(ranges) {
	case 0:
		s, err := newFileStream(ctx, f, name, withoutBoundary(opts))
		if err != nil {
			return nil, err
		}
		return Full(s), nil
	case 1:
		s, err := newRangeStream(ctx, f, name, ranges[0], withoutBoundary(opts))
		if err != nil {
			return nil, err
		}
		return Range(s), nil
	default:
		s, err := newMultiRangeStream(ctx, f, name, ranges, contentType, opts)
		if err != nil {
			return nil, err
		}
		return MultiRange(s), nil
	}
}

func withoutBoundary(opts []Option) []Option {
	out := make([]Option, 0, len(opts))
	for _, opt := range opts {
		if _, ok := opt.(*boundaryOption); ok {
			continue
		}
		out = append(out, opt)
	}
	return out
}
