package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// RealSleeper sleeps on the wall clock.
var RealSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
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
})

// State is a snapshot of the shared limiter plus the run-wide counters.
type State struct {
	CallsInWindow       int
	ConsecutiveFailures int
	CurrentBackoff      time.Duration
	RateLimitHits       int64
	TotalSleep          time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock, used by tests.
func WithClock(now func() time.Time, sleeper Sleeper) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleeper = sleeper
	}
}

// WithAcquireHook is called after every admitted call with the admission time
// and how long the caller waited.
func WithAcquireHook(fn func(at time.Time, waited time.Duration)) Option {
	return func(l *Limiter) {
		l.onAcquire = fn
	}
}

// Limiter is a sliding-window limiter shared by every worker of a run: at most
// limit calls are admitted in any window. It also carries the run's
// rate-limit counters.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time

	consecutiveFailures int
	currentBackoff      time.Duration
	rateLimitHits       int64
	totalSleep          time.Duration

	now       func() time.Time
	sleeper   Sleeper
	onAcquire func(time.Time, time.Duration)
}

// New creates a limiter admitting limit calls per window.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	if limit < 1 {
		limit = 1
	}
	l := &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		sleeper: RealSleeper,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.calls = make([]time.Time, 0, limit)
	return l
}

// Wait blocks until a call can be made without exceeding the window budget.
func (l *Limiter) Wait(ctx context.Context) error {
	start := l.now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.calls) < l.limit {
			l.calls = append(l.calls, now)
			hook := l.onAcquire
			l.mu.Unlock()
			if hook != nil {
				hook(now, now.Sub(start))
			}
			return nil
		}
		wait := l.calls[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if err := l.sleeper.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// prune drops calls that left the window. Caller holds mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

// RecordRateLimit counts one provider rate-limit response and the backoff it caused.
func (l *Limiter) RecordRateLimit(backoff time.Duration) {
	l.mu.Lock()
	l.rateLimitHits++
	l.consecutiveFailures++
	l.currentBackoff = backoff
	l.mu.Unlock()
}

// RecordFailure counts a non rate-limit failure.
func (l *Limiter) RecordFailure(backoff time.Duration) {
	l.mu.Lock()
	l.consecutiveFailures++
	l.currentBackoff = backoff
	l.mu.Unlock()
}

// RecordSuccess clears the failure streak.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	l.consecutiveFailures = 0
	l.currentBackoff = 0
	l.mu.Unlock()
}

// AddSleep adds d to the run's total sleep time.
func (l *Limiter) AddSleep(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	l.totalSleep += d
	l.mu.Unlock()
}

// Reset clears window and counters at the start of a run.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.calls = l.calls[:0]
	l.consecutiveFailures = 0
	l.currentBackoff = 0
	l.rateLimitHits = 0
	l.totalSleep = 0
	l.mu.Unlock()
}

func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return State{
		CallsInWindow:       len(l.calls),
		ConsecutiveFailures: l.consecutiveFailures,
		CurrentBackoff:      l.currentBackoff,
		RateLimitHits:       l.rateLimitHits,
		TotalSleep:          l.totalSleep,
	}
}
