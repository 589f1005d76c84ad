package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// -----------------------------------------------------------------------------
// Filesystem Access
// -----------------------------------------------------------------------------

// fsAccess implements FileAccess using the local filesystem.
type fsAccess struct {
	root string
}

// NewFS creates a FileAccess serving files under the given directory.
// The directory must exist. Names are slash-separated and relative to root;
// names that would escape root are rejected with ErrInvalidPath.
func NewFS(root string) (FileAccess, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spool: %s is not a directory", root)
	}
	return &fsAccess{root: root}, nil
}

func (a *fsAccess) Open(ctx context.Context, name string) (File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := a.safePathForFile(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("spool: open %s: %w", name, ErrNotFound)
		case errors.Is(err, os.ErrPermission):
			return nil, fmt.Errorf("spool: open %s: %w", name, ErrPermission)
		}
		return nil, &IOError{Op: "open", Name: name, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &IOError{Op: "stat", Name: name, Err: err}
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("spool: open %s: is a directory: %w", name, ErrNotFound)
	}
	return &osFile{f: f}, nil
}

// safePathForFile validates and resolves a file name, ensuring it stays within the root.
//
// Note: This does not prevent symlink escapes. A symlink inside the root pointing
// outside can still be opened.
func (a *fsAccess) safePathForFile(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidPath
	}

	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(name, "/")))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	if filepath.IsAbs(cleaned) {
		return "", ErrInvalidPath
	}

	fullPath := filepath.Join(a.root, cleaned)

	absRoot, err := filepath.Abs(a.root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}

	return fullPath, nil
}

// osFile implements File over an *os.File.
type osFile struct {
	f *os.File
}

func (o *osFile) Size(_ context.Context) (int64, error) {
	info, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (o *osFile) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := o.f.ReadAt(p, off)
	if errors.Is(err, io.EOF) && n > 0 {
		// Report the short read now and EOF on the next call.
		return n, nil
	}
	return n, err
}

func (o *osFile) Close() error {
	return o.f.Close()
}

// -----------------------------------------------------------------------------
// Memory Access
// -----------------------------------------------------------------------------

// Memory implements FileAccess over an in-memory map of names to contents.
//
// Memory is safe for concurrent use. An open File keeps reading the contents
// it was opened with, even if the name is replaced or deleted afterwards.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory FileAccess.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]byte),
	}
}

// Put stores a copy of data under name, replacing any previous contents.
// Returns ErrInvalidPath if the name is empty or contains traversal sequences.
func (m *Memory) Put(name string, data []byte) error {
	normalized, valid := normalizePathForFile(name)
	if !valid {
		return ErrInvalidPath
	}

	dataCopy := append([]byte(nil), data...)

	m.mu.Lock()
	m.data[normalized] = dataCopy
	m.mu.Unlock()
	return nil
}

// Delete removes name if present.
func (m *Memory) Delete(name string) {
	normalized, valid := normalizePathForFile(name)
	if !valid {
		return
	}
	m.mu.Lock()
	delete(m.data, normalized)
	m.mu.Unlock()
}

// Open returns a handle to the contents stored under name.
func (m *Memory) Open(ctx context.Context, name string) (File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	normalized, valid := normalizePathForFile(name)
	if !valid {
		return nil, ErrInvalidPath
	}

	m.mu.RLock()
	data, exists := m.data[normalized]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("spool: open %s: %w", name, ErrNotFound)
	}
	// Put never mutates a stored slice in place, so sharing it is safe.
	return &memFile{data: data}, nil
}

// memFile implements File over a byte slice.
type memFile struct {
	data   []byte
	closed bool
}

func (f *memFile) Size(_ context.Context) (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	return int64(len(f.data)), nil
}

func (f *memFile) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrInvalidRange
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	return copy(p, f.data[off:]), nil
}

func (f *memFile) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	return nil
}

// normalizePathForFile ensures consistent name formatting for file operations.
// Returns the normalized name and whether it's valid.
func normalizePathForFile(path string) (string, bool) {
	if path == "" {
		return "", false
	}

	cleaned := filepath.Clean(path)
	cleaned = filepath.ToSlash(cleaned)
	cleaned = strings.TrimPrefix(cleaned, "/")

	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." || cleaned == "" {
		return "", false
	}

	return cleaned, true
}

// Ensure the backends implement FileAccess
var (
	_ FileAccess = (*fsAccess)(nil)
	_ FileAccess = (*Memory)(nil)
)
