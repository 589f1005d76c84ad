package spool

import (
	"context"
	"errors"
	"io"
)

// bodyReader adapts a Body to io.Reader for net/http and io.Copy.
type bodyReader struct {
	ctx  context.Context
	body *Body
	buf  []byte
	err  error
}

// NewReader returns a reader over the bytes of b. Reads pull frames from b
// with ctx; Close closes b. A mid-stream failure is returned by Read and
// repeated on later calls.
func NewReader(ctx context.Context, b *Body) io.ReadCloser {
	return &bodyReader{ctx: ctx, body: b}
}

func (r *bodyReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.buf, r.err = r.body.Next(r.ctx)
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *bodyReader) Close() error {
	r.buf = nil
	if r.err == nil {
		r.err = ErrClosed
	}
	return r.body.Close()
}

// Copy writes every frame of b to w and closes b. It returns the number of
// bytes written and the first stream or write error; reaching end of stream
// is not an error.
func Copy(ctx context.Context, w io.Writer, b *Body) (written int64, err error) {
	defer closer(b)()

	for {
		frame, err := b.Next(ctx)
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		n, err := w.Write(frame)
		written += int64(n)
		if err != nil {
			return written, err
		}
		if n != len(frame) {
			return written, io.ErrShortWrite
		}
	}
}
