package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const hello = "hello world"

func frameStrings(frames [][]byte) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f)
	}
	return out
}

// -----------------------------------------------------------------------------
// Whole-file stream
// -----------------------------------------------------------------------------

func TestFileStream_EmitsWholeFile(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"x.txt": "xyz"})

	s, err := OpenFileStream(t.Context(), fa, "x.txt")
	if err != nil {
		t.Fatalf("OpenFileStream failed: %v", err)
	}
	frames, err := drain(t, s)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if diff := cmp.Diff([]string{"xyz"}, frameStrings(frames)); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
	if fa.OpenHandles() != 0 {
		t.Errorf("expected handle released after last frame, %d open", fa.OpenHandles())
	}
}

func TestFileStream_ChunksAtChunkSize(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})

	s, err := OpenFileStream(t.Context(), fa, "a.txt", WithChunkSize(4))
	if err != nil {
		t.Fatalf("OpenFileStream failed: %v", err)
	}
	frames, err := drain(t, s)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	want := []string{"hell", "o wo", "rld"}
	if diff := cmp.Diff(want, frameStrings(frames)); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStream_ShortReadsFillFrames(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})
	fa.SetMaxRead(2)

	s, err := OpenFileStream(t.Context(), fa, "a.txt", WithChunkSize(5))
	if err != nil {
		t.Fatalf("OpenFileStream failed: %v", err)
	}
	frames, err := drain(t, s)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	want := []string{"hello", " worl", "d"}
	if diff := cmp.Diff(want, frameStrings(frames)); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStream_EmptyFile(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"empty": ""})

	s, err := OpenFileStream(t.Context(), fa, "empty")
	if err != nil {
		t.Fatalf("OpenFileStream failed: %v", err)
	}
	if fa.OpenHandles() != 0 {
		t.Errorf("expected empty file released at construction, %d open", fa.OpenHandles())
	}
	if _, err := s.Next(t.Context()); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if fa.ReadCount() != 0 {
		t.Errorf("expected no reads, got %d", fa.ReadCount())
	}
}

func TestFileStream_SizeFailure(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})
	fa.sizeErr = errInjected

	_, err := OpenFileStream(t.Context(), fa, "a.txt")
	if !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
	if !errors.Is(err, errInjected) {
		t.Errorf("expected injected cause, got %v", err)
	}
	if fa.OpenHandles() != 0 {
		t.Errorf("expected handle closed on construction failure, %d open", fa.OpenHandles())
	}
}

func TestFileStream_NotFound(t *testing.T) {
	_, fa := memAccess(t, nil)

	_, err := OpenFileStream(t.Context(), fa, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStream_InvalidOption(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})

	_, err := OpenFileStream(t.Context(), fa, "a.txt", WithBoundary("B"))
	if !errors.Is(err, ErrOptionNotValidForStream) {
		t.Errorf("expected ErrOptionNotValidForStream, got %v", err)
	}
	if fa.OpenHandles() != 0 {
		t.Errorf("expected handle closed on construction failure, %d open", fa.OpenHandles())
	}

	_, err = OpenFileStream(t.Context(), fa, "a.txt", WithChunkSize(0))
	if err == nil {
		t.Error("expected error for zero chunk size")
	}
}

// -----------------------------------------------------------------------------
// Single-range stream
// -----------------------------------------------------------------------------

func TestRangeStream_Prefix(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})

	s, err := OpenRangeStream(t.Context(), fa, "a.txt", ByteRange{Start: 0, End: 5})
	if err != nil {
		t.Fatalf("OpenRangeStream failed: %v", err)
	}
	frames, err := drain(t, s)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if got := concat(frames); got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
	if fa.OpenHandles() != 0 {
		t.Errorf("expected handle released, %d open", fa.OpenHandles())
	}
}

func TestRangeStream_EveryWindow(t *testing.T) {
	for _, chunk := range []int{1, 3, DefaultChunkSize} {
		for start := 0; start <= len(hello); start++ {
			for end := start; end <= len(hello); end++ {
				t.Run(fmt.Sprintf("chunk%d/%d-%d", chunk, start, end), func(t *testing.T) {
					_, fa := memAccess(t, map[string]string{"a.txt": hello})
					fa.SetMaxRead(2)

					r := ByteRange{Start: int64(start), End: int64(end)}
					s, err := OpenRangeStream(t.Context(), fa, "a.txt", r, WithChunkSize(chunk))
					if err != nil {
						t.Fatalf("OpenRangeStream failed: %v", err)
					}
					frames, err := drain(t, s)
					if err != nil {
						t.Fatalf("drain failed: %v", err)
					}
					if got, want := concat(frames), hello[start:end]; got != want {
						t.Errorf("got %q, want %q", got, want)
					}
					for i, f := range frames {
						if len(f) == 0 || len(f) > chunk {
							t.Errorf("frame %d has length %d (chunk %d)", i, len(f), chunk)
						}
					}
					if int64(len(concat(frames))) != s.Len() {
						t.Errorf("Len = %d, emitted %d", s.Len(), len(concat(frames)))
					}
				})
			}
		}
	}
}

func TestRangeStream_ZeroLengthNeverReads(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})

	s, err := OpenRangeStream(t.Context(), fa, "a.txt", ByteRange{Start: 4, End: 4})
	if err != nil {
		t.Fatalf("OpenRangeStream failed: %v", err)
	}
	if _, err := s.Next(t.Context()); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if fa.ReadCount() != 0 {
		t.Errorf("expected no reads, got %d", fa.ReadCount())
	}
	if fa.OpenHandles() != 0 {
		t.Errorf("expected handle released, %d open", fa.OpenHandles())
	}
}

func TestRangeStream_InvalidRange(t *testing.T) {
	for _, r := range []ByteRange{
		{Start: 5, End: 12},
		{Start: 6, End: 5},
		{Start: -1, End: 3},
	} {
		_, fa := memAccess(t, map[string]string{"a.txt": hello})
		_, err := OpenRangeStream(t.Context(), fa, "a.txt", r)
		if !errors.Is(err, ErrInvalidRange) {
			t.Errorf("%+v: expected ErrInvalidRange, got %v", r, err)
		}
		if fa.OpenHandles() != 0 {
			t.Errorf("%+v: expected handle closed, %d open", r, fa.OpenHandles())
		}
	}
}

func TestRangeStream_EmptyContentRange(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})

	s, err := OpenRangeStream(t.Context(), fa, "a.txt", ByteRange{Start: 0, End: 0})
	if err != nil {
		t.Fatalf("OpenRangeStream failed: %v", err)
	}
	defer closer(s)()

	if got := s.ContentRange(); got != "bytes */11" {
		t.Errorf("ContentRange = %q, want %q", got, "bytes */11")
	}
}

func TestRangeStream_ContentRange(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})

	s, err := OpenRangeStream(t.Context(), fa, "a.txt", ByteRange{Start: 6, End: 11})
	if err != nil {
		t.Fatalf("OpenRangeStream failed: %v", err)
	}
	defer closer(s)()

	if got := s.ContentRange(); got != "bytes 6-10/11" {
		t.Errorf("ContentRange = %q", got)
	}
	if s.FileSize() != 11 || s.Len() != 5 {
		t.Errorf("FileSize = %d, Len = %d", s.FileSize(), s.Len())
	}
	if s.Range() != (ByteRange{Start: 6, End: 11}) {
		t.Errorf("Range = %+v", s.Range())
	}
}

// -----------------------------------------------------------------------------
// Failure and release
// -----------------------------------------------------------------------------

func TestRangeStream_ReadFailureThenEOF(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})
	fa.SetReadError(errInjected, 1)

	s, err := OpenRangeStream(t.Context(), fa, "a.txt", ByteRange{Start: 0, End: 11}, WithChunkSize(4))
	if err != nil {
		t.Fatalf("OpenRangeStream failed: %v", err)
	}

	frame, err := s.Next(t.Context())
	if err != nil || string(frame) != "hell" {
		t.Fatalf("first Next = %q, %v", frame, err)
	}

	_, err = s.Next(t.Context())
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Name != "a.txt" || ioErr.Op != "read" {
		t.Errorf("unexpected error detail: %#v", err)
	}
	if fa.OpenHandles() != 0 {
		t.Errorf("expected handle released after failure, %d open", fa.OpenHandles())
	}

	for range 3 {
		if _, err := s.Next(t.Context()); !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF after failure, got %v", err)
		}
	}
}

// lyingFile reports a size larger than the bytes it holds.
type lyingFile struct {
	File
	size int64
}

func (f *lyingFile) Size(context.Context) (int64, error) { return f.size, nil }

func TestFileStream_ShrunkFile(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})
	f := &lyingFile{File: openFile(t, fa, "a.txt"), size: 20}

	s, err := NewFileStream(t.Context(), f)
	if err != nil {
		t.Fatalf("NewFileStream failed: %v", err)
	}
	_, err = s.Next(t.Context())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
	if !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
	if fa.OpenHandles() != 0 {
		t.Errorf("expected handle released, %d open", fa.OpenHandles())
	}
}

func TestFileStream_NoProgress(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})
	fa.zeroReads = true

	s, err := OpenFileStream(t.Context(), fa, "a.txt")
	if err != nil {
		t.Fatalf("OpenFileStream failed: %v", err)
	}
	if _, err := s.Next(t.Context()); !errors.Is(err, io.ErrNoProgress) {
		t.Errorf("expected io.ErrNoProgress, got %v", err)
	}
}

func TestFileStream_CanceledContext(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})

	s, err := OpenFileStream(t.Context(), fa, "a.txt")
	if err != nil {
		t.Fatalf("OpenFileStream failed: %v", err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if fa.OpenHandles() != 0 {
		t.Errorf("expected handle released, %d open", fa.OpenHandles())
	}
}

func TestFileStream_CloseIsIdempotent(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})

	s, err := OpenFileStream(t.Context(), fa, "a.txt", WithChunkSize(2))
	if err != nil {
		t.Fatalf("OpenFileStream failed: %v", err)
	}
	if _, err := s.Next(t.Context()); err != nil {
		t.Fatalf("Next failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if fa.Closes() != 1 {
		t.Errorf("expected exactly one handle close, got %d", fa.Closes())
	}
	if _, err := s.Next(t.Context()); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after Close, got %v", err)
	}
}

func TestFileStream_ExhaustThenClose(t *testing.T) {
	_, fa := memAccess(t, map[string]string{"a.txt": hello})

	s, err := OpenFileStream(t.Context(), fa, "a.txt")
	if err != nil {
		t.Fatalf("OpenFileStream failed: %v", err)
	}
	if _, err := drain(t, s); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close after exhaustion failed: %v", err)
	}
	if fa.Closes() != 1 {
		t.Errorf("expected exactly one handle close, got %d", fa.Closes())
	}
}
