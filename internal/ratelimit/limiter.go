package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/bm-repricer/internal/model"
)

// Observer receives limiter events. Implemented by internal/metrics.
type Observer interface {
	ObserveAcquire(bucket string, wait time.Duration, ok bool)
	SetTokens(bucket string, tokens int)
}

// Limiter holds one token bucket per named resource.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	now      func() time.Time
	logger   *slog.Logger
	observer Observer
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(l *Limiter) {
		l.observer = o
	}
}

// New creates an empty Limiter. Buckets are added with Configure.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// bucket is a single token bucket. All fields are guarded by mu.
type bucket struct {
	mu         sync.Mutex
	name       string
	maxTokens  int
	interval   time.Duration
	tokens     int
	lastRefill time.Time

	// changed is closed and replaced whenever the bucket is reconfigured,
	// waking waiters so they re-evaluate against the new limits.
	changed chan struct{}
}

// refillLocked tops the bucket up to max once per elapsed interval.
// Caller must hold b.mu.
func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.interval {
		return
	}
	windows := elapsed / b.interval
	b.tokens = b.maxTokens
	b.lastRefill = b.lastRefill.Add(windows * b.interval)
}

// snapshotLocked returns the bucket state. Caller must hold b.mu.
func (b *bucket) snapshotLocked() model.RateLimitBucket {
	return model.RateLimitBucket{
		Name:           b.name,
		MaxTokens:      b.maxTokens,
		RefillInterval: b.interval,
		CurrentTokens:  b.tokens,
		LastRefillTime: b.lastRefill,
		NextRefillTime: b.lastRefill.Add(b.interval),
	}
}

// Configure creates or updates a bucket. Changing limits takes effect
// immediately; current tokens are capped at the new maximum and blocked
// callers are woken to re-check.
func (l *Limiter) Configure(name string, maxTokens int, interval time.Duration) error {
	if name == "" {
		return model.NewValidationError("name", "is required")
	}
	if maxTokens < 1 {
		return model.NewValidationError("max_tokens", "must be >= 1")
	}
	if interval <= 0 {
		return model.NewValidationError("refill_interval_ms", "must be > 0")
	}

	l.mu.Lock()
	b, ok := l.buckets[name]
	if !ok {
		b = &bucket{
			name:       name,
			maxTokens:  maxTokens,
			interval:   interval,
			tokens:     maxTokens,
			lastRefill: l.now(),
			changed:    make(chan struct{}),
		}
		l.buckets[name] = b
		l.mu.Unlock()

		l.logger.Info("rate limit bucket created",
			"bucket", name,
			"max_tokens", maxTokens,
			"refill_interval", interval,
		)
		l.setTokens(name, maxTokens)
		return nil
	}
	l.mu.Unlock()

	b.mu.Lock()
	b.refillLocked(l.now())
	b.maxTokens = maxTokens
	b.interval = interval
	if b.tokens > maxTokens {
		b.tokens = maxTokens
	}
	tokens := b.tokens
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()

	l.logger.Info("rate limit bucket reconfigured",
		"bucket", name,
		"max_tokens", maxTokens,
		"refill_interval", interval,
	)
	l.setTokens(name, tokens)
	return nil
}

// Acquire takes one token from the named bucket, waiting for a refill when
// the bucket is empty. A timeout <= 0 waits until ctx is done. When the
// timeout elapses first the error wraps model.ErrRateLimitTimeout.
func (l *Limiter) Acquire(ctx context.Context, name string, timeout time.Duration) error {
	b, err := l.lookup(name)
	if err != nil {
		return err
	}

	start := time.Now()
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		b.mu.Lock()
		b.refillLocked(l.now())
		if b.tokens > 0 {
			b.tokens--
			tokens := b.tokens
			b.mu.Unlock()

			l.setTokens(name, tokens)
			l.observe(name, time.Since(start), true)
			return nil
		}
		wait := b.lastRefill.Add(b.interval).Sub(l.now())
		changed := b.changed
		b.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		refill := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			refill.Stop()
			l.observe(name, time.Since(start), false)
			return ctx.Err()
		case <-deadline:
			refill.Stop()
			l.observe(name, time.Since(start), false)
			l.logger.Warn("rate limit acquire timed out",
				"bucket", name,
				"timeout", timeout,
			)
			return fmt.Errorf("acquire %s after %v: %w", name, timeout, model.ErrRateLimitTimeout)
		case <-changed:
			refill.Stop()
		case <-refill.C:
		}
	}
}

// TryAcquire takes a token only if one is immediately available.
func (l *Limiter) TryAcquire(name string) (bool, error) {
	b, err := l.lookup(name)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	b.refillLocked(l.now())
	if b.tokens == 0 {
		b.mu.Unlock()
		return false, nil
	}
	b.tokens--
	tokens := b.tokens
	b.mu.Unlock()

	l.setTokens(name, tokens)
	return true, nil
}

// Status returns the current state of a bucket after applying any due refill.
func (l *Limiter) Status(name string) (model.RateLimitBucket, error) {
	b, err := l.lookup(name)
	if err != nil {
		return model.RateLimitBucket{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(l.now())
	return b.snapshotLocked(), nil
}

// Snapshot returns the state of every bucket, sorted by name.
func (l *Limiter) Snapshot() []model.RateLimitBucket {
	l.mu.RLock()
	names := make([]string, 0, len(l.buckets))
	for name := range l.buckets {
		names = append(names, name)
	}
	l.mu.RUnlock()
	sort.Strings(names)

	out := make([]model.RateLimitBucket, 0, len(names))
	for _, name := range names {
		if s, err := l.Status(name); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func (l *Limiter) lookup(name string) (*bucket, error) {
	l.mu.RLock()
	b, ok := l.buckets[name]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("bucket %q: %w", name, model.ErrUnknownBucket)
	}
	return b, nil
}

func (l *Limiter) setTokens(name string, tokens int) {
	if l.observer != nil {
		l.observer.SetTokens(name, tokens)
	}
}

func (l *Limiter) observe(name string, wait time.Duration, ok bool) {
	if l.observer != nil {
		l.observer.ObserveAcquire(name, wait, ok)
	}
}
