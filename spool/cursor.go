package spool

import (
	"context"
	"errors"
	"io"
)

// cursor tracks progress through one byte window of a file.
// It never reads at or past off+remaining.
type cursor struct {
	file      File
	name      string
	off       int64
	remaining int64
	chunkSize int
}

func newCursor(f File, name string, r ByteRange, chunkSize int) cursor {
	return cursor{
		file:      f,
		name:      name,
		off:       r.Start,
		remaining: r.Len(),
		chunkSize: chunkSize,
	}
}

// next returns the next frame of the window, or io.EOF once it is exhausted.
// Short reads are retried until the frame is full.
func (c *cursor) next(ctx context.Context) ([]byte, error) {
	if c.remaining <= 0 {
		return nil, io.EOF
	}

	size := int64(c.chunkSize)
	if c.remaining < size {
		size = c.remaining
	}
	buf := make([]byte, size)

	filled := 0
	for filled < len(buf) {
		n, err := c.file.ReadRange(ctx, buf[filled:], c.off+int64(filled))
		if n < 0 || n > len(buf)-filled {
			return nil, &IOError{Op: "read", Name: c.name, Err: errors.New("invalid read count")}
		}
		filled += n
		if errors.Is(err, io.EOF) {
			if filled < len(buf) {
				// File shrank below the window captured at construction.
				return nil, &IOError{Op: "read", Name: c.name, Err: io.ErrUnexpectedEOF}
			}
			break
		}
		if err != nil {
			return nil, &IOError{Op: "read", Name: c.name, Err: err}
		}
		if n == 0 {
			return nil, &IOError{Op: "read", Name: c.name, Err: io.ErrNoProgress}
		}
	}

	c.off += int64(filled)
	c.remaining -= int64(filled)
	return buf, nil
}
