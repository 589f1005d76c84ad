package spool

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// DefaultChunkSize is the largest frame a stream emits unless WithChunkSize
// says otherwise.
const DefaultChunkSize = 8 * 1024

// maxBoundaryLen is the RFC 2046 limit on multipart boundary length.
const maxBoundaryLen = 70

// -----------------------------------------------------------------------------
// Stream Configuration
// -----------------------------------------------------------------------------

// streamConfig holds the resolved configuration for a stream.
type streamConfig struct {
	chunkSize int
	logger    *slog.Logger
	boundary  string
}

// Option configures stream construction.
// Using an option with a constructor it does not apply to returns an error.
type Option interface {
	apply(cfg *streamConfig, kind Kind) error
}

// ErrOptionNotValidForStream indicates an option was passed to a stream
// constructor it does not apply to.
var ErrOptionNotValidForStream = errors.New("option not valid for stream")

func newStreamConfig(kind Kind, opts []Option) (*streamConfig, error) {
	cfg := &streamConfig{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg, kind); err != nil {
			return nil, fmt.Errorf("spool: %w", err)
		}
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return cfg, nil
}

// chunkSizeOption implements Option for WithChunkSize.
type chunkSizeOption struct {
	size int
}

// WithChunkSize sets the maximum frame size in bytes.
// Default: DefaultChunkSize.
func WithChunkSize(size int) Option {
	return &chunkSizeOption{size: size}
}

func (o *chunkSizeOption) apply(cfg *streamConfig, _ Kind) error {
	if o.size <= 0 {
		return fmt.Errorf("WithChunkSize: size must be positive, got %d", o.size)
	}
	cfg.chunkSize = o.size
	return nil
}

// loggerOption implements Option for WithLogger.
type loggerOption struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for part and file transitions and for
// mid-stream failures. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return &loggerOption{logger: l}
}

func (o *loggerOption) apply(cfg *streamConfig, _ Kind) error {
	cfg.logger = o.logger
	return nil
}

// boundaryOption implements Option for WithBoundary (multi-range only).
type boundaryOption struct {
	boundary string
}

// WithBoundary fixes the multipart boundary instead of generating one.
// This option is only valid for NewMultiRangeStream.
func WithBoundary(boundary string) Option {
	return &boundaryOption{boundary: boundary}
}

func (o *boundaryOption) apply(cfg *streamConfig, kind Kind) error {
	if kind != KindMultiRange {
		return fmt.Errorf("WithBoundary: %w", ErrOptionNotValidForStream)
	}
	if err := validateBoundary(o.boundary); err != nil {
		return err
	}
	cfg.boundary = o.boundary
	return nil
}

func validateBoundary(b string) error {
	if b == "" || len(b) > maxBoundaryLen || strings.ContainsAny(b, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidBoundary, b)
	}
	return nil
}

// newBoundary returns 32 hex digits drawn from a random UUID.
func newBoundary() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}
