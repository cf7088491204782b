package util

import (
	"context"
	"time"
)

// Pacer enforces the deliberately sequential pacing used against the
// upstream feed: a short delay after every operation, and a longer delay
// instead at every batch boundary. The upstream's throttling policy is
// undocumented, so conservative fixed sleeps are the default.
type Pacer struct {
	delay      time.Duration
	batchDelay time.Duration
	batchSize  int
	count      int
}

// NewPacer creates a Pacer that sleeps delay after each operation and
// batchDelay after every batchSize-th operation.
func NewPacer(delay, batchDelay time.Duration, batchSize int) *Pacer {
	return &Pacer{
		delay:      delay,
		batchDelay: batchDelay,
		batchSize:  batchSize,
	}
}

// Wait records one completed operation and blocks for the appropriate
// delay. It returns early with the context error if ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.next()
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// next advances the operation counter and returns the delay to apply.
func (p *Pacer) next() time.Duration {
	p.count++
	if p.batchSize > 0 && p.count%p.batchSize == 0 {
		return p.batchDelay
	}
	return p.delay
}
