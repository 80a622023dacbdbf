package ratelimit

import (
	"context"
	"math/rand"
	"time"
)

// Limiter paces vendor API calls and page fetches. A fixed interval comes
// from the requests-per-second budget; optional jitter spreads the calls so
// they don't land on an exact cadence. Safe for concurrent use.
type Limiter struct {
	ticker   *time.Ticker
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
	ch       <-chan time.Time
}

// NewLimiter creates a limiter for the given requests per second. jitter is
// the fraction of the interval to randomize by and is clamped to [0, 1].
// If rps <= 0 the limiter never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{jitter: jitter}
	}

	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}

	interval := time.Duration(float64(time.Second) / rps)
	ticker := time.NewTicker(interval)

	return &Limiter{
		ticker:   ticker,
		jitter:   jitter,
		interval: interval,
		ch:       ticker.C,
	}
}

// Interval reports the base delay between permitted operations.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next operation may start, or until the context is
// canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.ch == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
	}

	if l.jitter <= 0 {
		return nil
	}

	// Random extra sleep in [-jitter, +jitter] * interval. The ticker already
	// enforces the minimum interval, so a negative draw just fires on the tick.
	factor := rand.Float64()*2 - 1
	extra := time.Duration(float64(l.interval) * l.jitter * factor)
	if extra <= 0 {
		return nil
	}

	select {
	case <-time.After(extra):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop releases the limiter's ticker.
func (l *Limiter) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
}
