package spool

import "io"

// closer returns a function that closes c, discarding the error.
// Use with defer for handles whose close error cannot change the outcome
// (files already fully read, bodies after a failed copy).
func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
