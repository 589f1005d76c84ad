package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const crlf = "\r\n"

type multiRangeState uint8

const (
	stateHeader multiRangeState = iota
	stateBody
	stateTrailer
	stateDone
)

// MultiRangeStream emits several windows of one file as a
// multipart/byteranges message. Each part is
//
//	--{boundary}\r\n
//	Content-Type: {content type}\r\n
//	Content-Range: bytes {start}-{end-1}/{size}\r\n
//	\r\n
//	{data}\r\n
//
// and the message ends with --{boundary}--\r\n. Parts are emitted in the
// order given, without merging or reordering.
type MultiRangeStream struct {
	file        File
	name        string
	ranges      []ByteRange
	contentType string
	size        int64
	boundary    string
	chunkSize   int
	logger      *slog.Logger

	state multiRangeState
	part  int
	cur   cursor
}

// NewMultiRangeStream creates a multipart stream over ranges of f, using
// contentType in every part header. ranges must be non-empty and each range
// must lie within the file's current size, which is also the size reported
// in every Content-Range line.
//
// Ownership of f follows NewFileStream.
func NewMultiRangeStream(ctx context.Context, f File, ranges []ByteRange, contentType string, opts ...Option) (*MultiRangeStream, error) {
	return newMultiRangeStream(ctx, f, "", ranges, contentType, opts)
}

// OpenMultiRangeStream opens name through fa and streams ranges of it.
func OpenMultiRangeStream(ctx context.Context, fa FileAccess, name string, ranges []ByteRange, contentType string, opts ...Option) (*MultiRangeStream, error) {
	f, err := fa.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return newMultiRangeStream(ctx, f, name, ranges, contentType, opts)
}

func newMultiRangeStream(ctx context.Context, f File, name string, ranges []ByteRange, contentType string, opts []Option) (*MultiRangeStream, error) {
	cfg, err := newStreamConfig(KindMultiRange, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if len(ranges) == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: empty range set", ErrInvalidRange)
	}
	if strings.ContainsAny(contentType, crlf) {
		_ = f.Close()
		return nil, fmt.Errorf("spool: content type contains a line break: %q", contentType)
	}
	size, err := f.Size(ctx)
	if err != nil {
		_ = f.Close()
		return nil, &IOError{Op: "stat", Name: name, Err: err}
	}
	for _, r := range ranges {
		if err := r.Validate(size); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	boundary := cfg.boundary
	if boundary == "" {
		boundary = newBoundary()
	}

	return &MultiRangeStream{
		file:        f,
		name:        name,
		ranges:      append([]ByteRange(nil), ranges...),
		contentType: contentType,
		size:        size,
		boundary:    boundary,
		chunkSize:   cfg.chunkSize,
		logger:      cfg.logger,
	}, nil
}

// Boundary returns the delimiter shared by every part of this stream.
func (s *MultiRangeStream) Boundary() string { return s.boundary }

// ContentType returns the value for the response Content-Type header.
func (s *MultiRangeStream) ContentType() string {
	return "multipart/byteranges; boundary=" + s.boundary
}

// Ranges returns a copy of the windows being streamed.
func (s *MultiRangeStream) Ranges() []ByteRange {
	return append([]ByteRange(nil), s.ranges...)
}

// FileSize returns the size of the underlying file captured at construction.
func (s *MultiRangeStream) FileSize() int64 { return s.size }

// Len returns the number of bytes the stream emits in total: every part
// header, every part's data, and the closing delimiter.
func (s *MultiRangeStream) Len() int64 {
	var n int64
	for i, r := range s.ranges {
		n += int64(len(s.header(i))) + r.Len()
	}
	return n + int64(len(s.trailer()))
}

// Next returns the next frame, or io.EOF after the closing delimiter.
// A failed read ends the stream without a closing delimiter; after the
// failure has been returned once, Next returns io.EOF.
func (s *MultiRangeStream) Next(ctx context.Context) ([]byte, error) {
	for {
		switch s.state {
		case stateHeader:
			h := s.header(s.part)
			s.cur = newCursor(s.file, s.name, s.ranges[s.part], s.chunkSize)
			s.state = stateBody
			s.logger.DebugContext(ctx, "multipart part started",
				"file", s.name, "part", s.part, "range", s.ranges[s.part].ContentRange(s.size))
			return []byte(h), nil

		case stateBody:
			frame, err := s.cur.next(ctx)
			if errors.Is(err, io.EOF) {
				s.part++
				if s.part < len(s.ranges) {
					s.state = stateHeader
				} else {
					s.state = stateTrailer
				}
				continue
			}
			if err != nil {
				s.logger.WarnContext(ctx, "multipart stream aborted",
					"file", s.name, "part", s.part, "error", err)
				_ = s.Close()
				return nil, err
			}
			return frame, nil

		case stateTrailer:
			t := s.trailer()
			_ = s.Close()
			return []byte(t), nil

		default:
			return nil, io.EOF
		}
	}
}

// Close releases the file. It is safe to call more than once.
func (s *MultiRangeStream) Close() error {
	s.state = stateDone
	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	s.cur.file = nil
	return f.Close()
}

// header returns the delimiter and header block of part i. Parts after the
// first begin with the CRLF that terminates the previous part's data.
func (s *MultiRangeStream) header(i int) string {
	var b strings.Builder
	if i > 0 {
		b.WriteString(crlf)
	}
	b.WriteString("--")
	b.WriteString(s.boundary)
	b.WriteString(crlf)
	if s.contentType != "" {
		b.WriteString("Content-Type: ")
		b.WriteString(s.contentType)
		b.WriteString(crlf)
	}
	b.WriteString("Content-Range: ")
	b.WriteString(s.ranges[i].ContentRange(s.size))
	b.WriteString(crlf)
	b.WriteString(crlf)
	return b.String()
}

// trailer returns the CRLF ending the last part followed by the closing
// delimiter.
func (s *MultiRangeStream) trailer() string {
	return crlf + "--" + s.boundary + "--" + crlf
}
