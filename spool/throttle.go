package spool

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// ThrottledAccess wraps fa so that reads from every file it opens share the
// token bucket of limiter, one token per byte. A single read never asks for
// more than the limiter's burst, so large reads come back short and the
// streams retry for the rest.
//
// A limiter with a finite rate and a burst below one is rejected with
// ErrInvalidLimiter, since it would refuse every read.
func ThrottledAccess(fa FileAccess, limiter *rate.Limiter) (FileAccess, error) {
	if limiter == nil {
		return nil, fmt.Errorf("%w: nil limiter", ErrInvalidLimiter)
	}
	if limiter.Limit() != rate.Inf && limiter.Burst() < 1 {
		return nil, fmt.Errorf("%w: burst %d with limit %v", ErrInvalidLimiter, limiter.Burst(), limiter.Limit())
	}
	return &throttledAccess{fa, limiter}, nil
}

type throttledAccess struct {
	FileAccess
	limiter *rate.Limiter
}

func (a *throttledAccess) Open(ctx context.Context, name string) (File, error) {
	f, err := a.FileAccess.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &throttledFile{File: f, limiter: a.limiter}, nil
}

type throttledFile struct {
	File
	limiter *rate.Limiter
}

func (f *throttledFile) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 || f.limiter.Limit() == rate.Inf {
		return f.File.ReadRange(ctx, p, off)
	}
	if burst := f.limiter.Burst(); burst > 0 && len(p) > burst {
		p = p[:burst]
	}
	if err := f.limiter.WaitN(ctx, len(p)); err != nil {
		return 0, err
	}
	return f.File.ReadRange(ctx, p, off)
}
