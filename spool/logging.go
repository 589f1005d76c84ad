package spool

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// LoggingAccess wraps fa with logging of opens, read failures and closes.
// If logger is nil, the default logger is used.
func LoggingAccess(fa FileAccess, logger *slog.Logger) FileAccess {
	return &loggingAccess{fa, logger}
}

type loggingAccess struct {
	FileAccess
	logger *slog.Logger
}

func (a *loggingAccess) Open(ctx context.Context, name string) (File, error) {
	l := a.logger
	if l == nil {
		l = slog.Default()
	}

	f, err := a.FileAccess.Open(ctx, name)

	switch {
	case errors.Is(err, ErrNotFound):
		l.InfoContext(ctx, "file not found", "file", name)
	case errors.Is(err, ErrPermission):
		l.WarnContext(ctx, "file permission denied", "file", name)
	case err != nil:
		l.ErrorContext(ctx, "file open error", "file", name, "error", err)
	default:
		l.DebugContext(ctx, "file opened", "file", name)
		f = &loggingFile{File: f, name: name, logger: l}
	}

	return f, err
}

type loggingFile struct {
	File
	name   string
	logger *slog.Logger
	read   int64
}

func (f *loggingFile) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := f.File.ReadRange(ctx, p, off)
	f.read += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		f.logger.ErrorContext(ctx, "file read error", "file", f.name, "offset", off, "error", err)
	}
	return n, err
}

func (f *loggingFile) Close() error {
	err := f.File.Close()
	if err != nil {
		f.logger.Error("file close error", "file", f.name, "error", err)
	} else {
		f.logger.Debug("file closed", "file", f.name, "bytes", f.read)
	}
	return err
}
