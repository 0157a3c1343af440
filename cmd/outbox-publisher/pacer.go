package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

// pacer spaces out polls: a flat interval while idle, doubling after failures.
type pacer struct {
	base    time.Duration
	backoff time.Duration
}

func newPacer(base time.Duration) *pacer {
	return &pacer{base: base, backoff: base}
}

func (p *pacer) idle() time.Duration {
	p.backoff = p.base
	return jitter(p.base)
}

func (p *pacer) failure() time.Duration {
	p.backoff = min(p.backoff*2, maxBackoff)
	return jitter(p.backoff)
}

func (p *pacer) reset() { p.backoff = p.base }

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
