package spool

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// window streams one byte window of a file it owns and closes the file as
// soon as the window is exhausted or a read fails.
type window struct {
	file   File
	cur    cursor
	done   bool
	logger *slog.Logger
}

// newWindow returns a window over r. An empty window releases f at once.
func newWindow(f File, name string, r ByteRange, cfg *streamConfig) window {
	w := window{
		file:   f,
		cur:    newCursor(f, name, r, cfg.chunkSize),
		logger: cfg.logger,
	}
	if r.Len() == 0 {
		_ = w.release()
	}
	return w
}

func (w *window) next(ctx context.Context) ([]byte, error) {
	if w.done {
		return nil, io.EOF
	}

	frame, err := w.cur.next(ctx)
	if errors.Is(err, io.EOF) {
		_ = w.release()
		return nil, io.EOF
	}
	if err != nil {
		w.logger.WarnContext(ctx, "stream read failed",
			"file", w.cur.name, "offset", w.cur.off, "error", err)
		_ = w.release()
		return nil, err
	}
	if w.cur.remaining == 0 {
		_ = w.release()
	}
	return frame, nil
}

func (w *window) release() error {
	w.done = true
	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	w.cur.file = nil
	return f.Close()
}

// -----------------------------------------------------------------------------
// Whole-file stream
// -----------------------------------------------------------------------------

// FileStream emits every byte of one file in order.
type FileStream struct {
	w    window
	size int64
}

// NewFileStream creates a stream over all of f. The size is captured now;
// a file that later shrinks fails the stream and bytes appended later are
// not emitted.
//
// The stream owns f and closes it when exhausted, failed, or closed. If
// construction fails f is closed before returning.
func NewFileStream(ctx context.Context, f File, opts ...Option) (*FileStream, error) {
	return newFileStream(ctx, f, "", opts)
}

// OpenFileStream opens name through fa and streams the whole file.
func OpenFileStream(ctx context.Context, fa FileAccess, name string, opts ...Option) (*FileStream, error) {
	f, err := fa.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return newFileStream(ctx, f, name, opts)
}

func newFileStream(ctx context.Context, f File, name string, opts []Option) (*FileStream, error) {
	cfg, err := newStreamConfig(KindFull, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	size, err := f.Size(ctx)
	if err != nil {
		_ = f.Close()
		return nil, &IOError{Op: "stat", Name: name, Err: err}
	}
	return &FileStream{
		w:    newWindow(f, name, ByteRange{Start: 0, End: size}, cfg),
		size: size,
	}, nil
}

// Next returns the next frame, or io.EOF after the last byte.
// After a failure has been returned once, Next returns io.EOF.
func (s *FileStream) Next(ctx context.Context) ([]byte, error) {
	return s.w.next(ctx)
}

// Len returns the number of bytes the stream emits in total.
func (s *FileStream) Len() int64 { return s.size }

// Close releases the file. It is safe to call more than once.
func (s *FileStream) Close() error { return s.w.release() }

// -----------------------------------------------------------------------------
// Single-range stream
// -----------------------------------------------------------------------------

// RangeStream emits the bytes of one window [Start, End) of a file.
type RangeStream struct {
	w    window
	rng  ByteRange
	size int64
}

// NewRangeStream creates a stream over r within f. The range must lie
// within the file's current size. A zero-length range is immediately at
// end of stream and never reads from f.
//
// Ownership of f follows NewFileStream.
func NewRangeStream(ctx context.Context, f File, r ByteRange, opts ...Option) (*RangeStream, error) {
	return newRangeStream(ctx, f, "", r, opts)
}

// OpenRangeStream opens name through fa and streams r.
func OpenRangeStream(ctx context.Context, fa FileAccess, name string, r ByteRange, opts ...Option) (*RangeStream, error) {
	f, err := fa.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return newRangeStream(ctx, f, name, r, opts)
}

func newRangeStream(ctx context.Context, f File, name string, r ByteRange, opts []Option) (*RangeStream, error) {
	cfg, err := newStreamConfig(KindRange, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	size, err := f.Size(ctx)
	if err != nil {
		_ = f.Close()
		return nil, &IOError{Op: "stat", Name: name, Err: err}
	}
	if err := r.Validate(size); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RangeStream{
		w:    newWindow(f, name, r, cfg),
		rng:  r,
		size: size,
	}, nil
}

// Next returns the next frame, or io.EOF after the last byte of the range.
// After a failure has been returned once, Next returns io.EOF.
func (s *RangeStream) Next(ctx context.Context) ([]byte, error) {
	return s.w.next(ctx)
}

// Range returns the window being streamed.
func (s *RangeStream) Range() ByteRange { return s.rng }

// FileSize returns the size of the underlying file captured at construction.
func (s *RangeStream) FileSize() int64 { return s.size }

// ContentRange returns the Content-Range header value for this stream.
func (s *RangeStream) ContentRange() string { return s.rng.ContentRange(s.size) }

// Len returns the number of bytes the stream emits in total.
func (s *RangeStream) Len() int64 { return s.rng.Len() }

// Close releases the file. It is safe to call more than once.
func (s *RangeStream) Close() error { return s.w.release() }
