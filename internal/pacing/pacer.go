// Package pacing spaces outreach actions apart.
//
// Every action is followed by a pause drawn uniformly from a configured
// Range, and cycles are separated by a fixed cooldown. All waits go through
// Pacer.Wait, which returns early when the context is cancelled.
package pacing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Range is an inclusive delay interval.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Validate rejects negative or inverted ranges.
func (r Range) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("delay range %s-%s: negative bound", r.Min, r.Max)
	}
	if r.Max < r.Min {
		return fmt.Errorf("delay range %s-%s: max below min", r.Min, r.Max)
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.Min, r.Max)
}

// WaitFunc suspends for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Pacer draws jittered delays and suspends execution.
type Pacer struct {
	mu   sync.Mutex
	rng  *rand.Rand
	wait WaitFunc
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithRand makes jitter deterministic; used by tests.
func WithRand(rng *rand.Rand) Option {
	return func(p *Pacer) { p.rng = rng }
}

// WithWaitFunc replaces the real sleep.
func WithWaitFunc(fn WaitFunc) Option {
	return func(p *Pacer) { p.wait = fn }
}

// New returns a Pacer that sleeps for real and draws from the global source.
func New(opts ...Option) *Pacer {
	p := &Pacer{wait: Sleep}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Jitter returns a delay uniformly distributed over r, inclusive of both
// bounds, at millisecond resolution.
func (p *Pacer) Jitter(r Range) time.Duration {
	lo := r.Min.Milliseconds()
	hi := r.Max.Milliseconds()
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}

	span := hi - lo + 1
	var n int64
	if p.rng != nil {
		p.mu.Lock()
		n = p.rng.Int64N(span)
		p.mu.Unlock()
	} else {
		n = rand.Int64N(span)
	}
	return time.Duration(lo+n) * time.Millisecond
}

// Wait suspends for d. It returns ctx.Err() if the context ends first.
func (p *Pacer) Wait(ctx context.Context, d time.Duration) error {
	return p.wait(ctx, d)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
