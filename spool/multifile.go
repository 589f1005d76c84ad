package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// MultiFileStream emits the concatenation of several sources as one body:
// all of the first source, then all of the second, and so on, with no bytes
// between them.
//
// Only the first source is opened at construction. Each later source is
// opened when the previous one is exhausted, so at most one file is open at
// a time.
type MultiFileStream struct {
	fa      FileAccess
	sources []Source
	lens    []int64 // bytes each source contributes; -1 until known
	cfg     *streamConfig

	idx  int
	cur  *window
	done bool
}

// NewMultiFileStream creates a stream over sources, read through fa.
// An empty list yields a stream that is immediately at end of stream.
// Failure to open the first source is returned here, before any frame has
// been produced; later failures end the stream mid-body.
func NewMultiFileStream(ctx context.Context, fa FileAccess, sources []Source, opts ...Option) (*MultiFileStream, error) {
	if fa == nil {
		return nil, errors.New("spool: file access is required")
	}
	cfg, err := newStreamConfig(KindMultiFiles, opts)
	if err != nil {
		return nil, err
	}

	lens := make([]int64, len(sources))
	for i, src := range sources {
		if src.Name == "" {
			return nil, fmt.Errorf("%w: source %d has no name", ErrInvalidPath, i)
		}
		lens[i] = -1
		if src.Range != nil {
			if err := src.Range.Validate(-1); err != nil {
				return nil, err
			}
			lens[i] = src.Range.Len()
		}
	}

	s := &MultiFileStream{
		fa:      fa,
		sources: append([]Source(nil), sources...),
		lens:    lens,
		cfg:     cfg,
	}
	if len(sources) == 0 {
		s.done = true
		return s, nil
	}
	if err := s.open(ctx); err != nil {
		s.done = true
		return nil, err
	}
	return s, nil
}

// open opens the source at s.idx and makes it current.
func (s *MultiFileStream) open(ctx context.Context) error {
	src := s.sources[s.idx]
	f, err := s.fa.Open(ctx, src.Name)
	if err != nil {
		return err
	}
	size, err := f.Size(ctx)
	if err != nil {
		_ = f.Close()
		return &IOError{Op: "stat", Name: src.Name, Err: err}
	}

	r := ByteRange{Start: 0, End: size}
	if src.Range != nil {
		r = *src.Range
	}
	if err := r.Validate(size); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", src.Name, err)
	}
	s.lens[s.idx] = r.Len()

	w := newWindow(f, src.Name, r, s.cfg)
	s.cur = &w
	s.cfg.logger.DebugContext(ctx, "multi-file source opened",
		"file", src.Name, "index", s.idx, "bytes", r.Len())
	return nil
}

// Next returns the next frame, or io.EOF after the last byte of the last
// source. Crossing from one source to the next never produces an empty
// frame. After a failure has been returned once, Next returns io.EOF.
func (s *MultiFileStream) Next(ctx context.Context) ([]byte, error) {
	for !s.done {
		if s.cur == nil {
			if s.idx >= len(s.sources) {
				s.done = true
				break
			}
			if err := s.open(ctx); err != nil {
				s.cfg.logger.WarnContext(ctx, "multi-file stream aborted",
					"file", s.sources[s.idx].Name, "index", s.idx, "error", err)
				s.done = true
				return nil, err
			}
		}

		frame, err := s.cur.next(ctx)
		if errors.Is(err, io.EOF) {
			s.cur = nil
			s.idx++
			continue
		}
		if err != nil {
			s.cur = nil
			s.done = true
			return nil, err
		}
		return frame, nil
	}
	return nil, io.EOF
}

// Len returns the number of bytes the stream emits in total. ok is false
// while some whole-file source has not been opened yet.
func (s *MultiFileStream) Len() (n int64, ok bool) {
	for _, l := range s.lens {
		if l < 0 {
			return 0, false
		}
		n += l
	}
	return n, true
}

// Sources returns a copy of the sources being streamed.
func (s *MultiFileStream) Sources() []Source {
	return append([]Source(nil), s.sources...)
}

// Close releases the open file, if any. It is safe to call more than once.
func (s *MultiFileStream) Close() error {
	s.done = true
	if s.cur == nil {
		return nil
	}
	w := s.cur
	s.cur = nil
	return w.release()
}
