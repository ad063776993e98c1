// Package breaker implements a consecutive-failure circuit breaker.
// One Breaker guards one logical upstream; independent upstreams get
// independent instances.
package breaker

import (
	"sync"
	"time"

	"librarium/contentservice/internal/metrics"
)

const (
	defaultThreshold = 5
	defaultCooldown  = 20 * time.Second
)

type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu           sync.Mutex
	failureCount int
	lastFailure  time.Time
	open         bool
	halfOpen     bool
}

type Option func(*Breaker)

func WithThreshold(threshold int) Option {
	return func(b *Breaker) {
		if threshold > 0 {
			b.threshold = threshold
		}
	}
}

func WithCooldown(cooldown time.Duration) Option {
	return func(b *Breaker) {
		if cooldown > 0 {
			b.cooldown = cooldown
		}
	}
}

// WithClock overrides the time source. Tests use it to step through the
// cooldown window without sleeping.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: defaultThreshold,
		cooldown:  defaultCooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	metrics.UpstreamAvailable.WithLabelValues(name).Set(1)
	return b
}

// IsOpen reports whether calls should be short-circuited. Once the cooldown
// has elapsed the breaker goes half-open and returns false, allowing one real
// attempt; a failure there reopens it immediately.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return false
	}
	if b.now().Sub(b.lastFailure) > b.cooldown {
		b.open = false
		b.halfOpen = true
		b.failureCount = 0
		metrics.UpstreamAvailable.WithLabelValues(b.name).Set(1)
		return false
	}
	return true
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.open = false
	b.halfOpen = false
	metrics.UpstreamAvailable.WithLabelValues(b.name).Set(1)
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount++
	b.lastFailure = b.now()
	if b.halfOpen || b.failureCount >= b.threshold {
		b.open = true
		b.halfOpen = false
		metrics.UpstreamAvailable.WithLabelValues(b.name).Set(0)
	}
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}
