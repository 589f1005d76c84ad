package spool

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

// -----------------------------------------------------------------------------
// Fault-Injection Access Wrapper (test-only)
// -----------------------------------------------------------------------------
//
// faultAccess wraps a FileAccess and enables deterministic fault injection for
// testing streaming failure paths. It provides:
//   - Error injection on open, size and read
//   - Short reads capped at a fixed size
//   - Call observation and open-handle accounting
//   - A pre-read hook for synchronizing with a stream mid-body

// faultAccess wraps a FileAccess with fault injection capabilities.
type faultAccess struct {
	inner FileAccess

	mu sync.Mutex

	// Error injection
	openErr      error
	openErrMatch string // if set, only inject openErr on names containing this substring
	sizeErr      error
	readErr      error
	readErrAfter int // reads that succeed before readErr is returned

	// maxRead caps the bytes returned by a single ReadRange (0 = no cap).
	maxRead int

	// zeroReads makes ReadRange return 0, nil without progress.
	zeroReads bool

	// beforeRead is called before each ReadRange reaches the inner file.
	beforeRead func(name string, off int64)

	// Call observation
	openCalls []string
	reads     []readCall
	open      int // handles currently open
	maxOpen   int // high-water mark of open
	closes    int
}

type readCall struct {
	name string
	off  int64
	n    int
}

func newFaultAccess(inner FileAccess) *faultAccess {
	return &faultAccess{inner: inner}
}

// SetOpenError sets an error returned by Open.
// If match is non-empty, the error is only returned for names containing match.
func (f *faultAccess) SetOpenError(err error, match ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
	f.openErrMatch = ""
	if len(match) > 0 {
		f.openErrMatch = match[0]
	}
}

// SetReadError makes every ReadRange after the first n successful ones fail.
func (f *faultAccess) SetReadError(err error, after int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
	f.readErrAfter = after
}

// SetBeforeRead sets a hook called before each ReadRange reaches the inner file.
func (f *faultAccess) SetBeforeRead(hook func(name string, off int64)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beforeRead = hook
}

// SetMaxRead caps how many bytes each ReadRange returns.
func (f *faultAccess) SetMaxRead(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxRead = n
}

func (f *faultAccess) Open(ctx context.Context, name string) (File, error) {
	f.mu.Lock()
	f.openCalls = append(f.openCalls, name)
	err := f.openErr
	if f.openErrMatch != "" && !strings.Contains(name, f.openErrMatch) {
		err = nil
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	inner, err := f.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.open++
	f.maxOpen = max(f.maxOpen, f.open)
	f.mu.Unlock()
	return &faultFile{access: f, name: name, inner: inner}, nil
}

// OpenCalls returns the names passed to Open, in order.
func (f *faultAccess) OpenCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.openCalls...)
}

// ReadCount returns the number of ReadRange calls made on any handle.
func (f *faultAccess) ReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

// OpenHandles returns the number of handles not yet closed.
func (f *faultAccess) OpenHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// MaxOpen returns the largest number of handles open at the same time.
func (f *faultAccess) MaxOpen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen
}

// Closes returns the number of Close calls on any handle.
func (f *faultAccess) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type faultFile struct {
	access *faultAccess
	name   string
	inner  File
	closed bool
}

func (f *faultFile) Size(ctx context.Context) (int64, error) {
	f.access.mu.Lock()
	err := f.access.sizeErr
	f.access.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.inner.Size(ctx)
}

func (f *faultFile) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	a := f.access
	a.mu.Lock()
	if f.closed {
		a.mu.Unlock()
		return 0, ErrClosed
	}
	succeeded := len(a.reads)
	readErr, after := a.readErr, a.readErrAfter
	maxRead, zero := a.maxRead, a.zeroReads
	hook := a.beforeRead
	a.mu.Unlock()

	if hook != nil {
		hook(f.name, off)
	}

	if readErr != nil && succeeded >= after {
		a.record(f.name, off, 0)
		return 0, readErr
	}
	if zero {
		a.record(f.name, off, 0)
		return 0, nil
	}
	if maxRead > 0 && len(p) > maxRead {
		p = p[:maxRead]
	}
	n, err := f.inner.ReadRange(ctx, p, off)
	a.record(f.name, off, n)
	return n, err
}

func (f *faultFile) Close() error {
	a := f.access
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closes++
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	a.open--
	return f.inner.Close()
}

func (a *faultAccess) record(name string, off int64, n int) {
	a.mu.Lock()
	a.reads = append(a.reads, readCall{name: name, off: off, n: n})
	a.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Shared helpers
// -----------------------------------------------------------------------------

var errInjected = errors.New("injected failure")

// memAccess returns a Memory holding files, wrapped for fault injection.
func memAccess(t *testing.T, files map[string]string) (*Memory, *faultAccess) {
	t.Helper()
	m := NewMemory()
	for name, data := range files {
		if err := m.Put(name, []byte(data)); err != nil {
			t.Fatalf("Put(%q): %v", name, err)
		}
	}
	return m, newFaultAccess(m)
}

// openFile opens name through fa or fails the test.
func openFile(t *testing.T, fa FileAccess, name string) File {
	t.Helper()
	f, err := fa.Open(t.Context(), name)
	if err != nil {
		t.Fatalf("Open(%q): %v", name, err)
	}
	return f
}

type puller interface {
	Next(ctx context.Context) ([]byte, error)
}

// drain pulls s until io.EOF or an error and returns every frame seen.
func drain(t *testing.T, s puller) ([][]byte, error) {
	t.Helper()
	var frames [][]byte
	for i := 0; ; i++ {
		if i > 1<<16 {
			t.Fatal("stream did not terminate")
		}
		frame, err := s.Next(t.Context())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return frames, err
		}
		frames = append(frames, frame)
	}
}

// concat joins frames into one string.
func concat(frames [][]byte) string {
	var b strings.Builder
	for _, f := range frames {
		b.Write(f)
	}
	return b.String()
}
