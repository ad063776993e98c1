// Package cache provides the single parametrized TTL cache shared by every
// consumer (search responses, discovery totals, page slices). Entries carry
// their own TTL, eviction is FIFO by insertion order, and an optional
// validator catches corrupted values that are unexpired but unusable.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"librarium/contentservice/internal/metrics"
)

const defaultMaxEntries = 400

// Validator inspects a cached value. Returning false marks the entry as
// corrupted: it is evicted and reported as a miss.
type Validator[T any] func(T) bool

// Acceptor vets a value before it is stored. Returning false drops the write.
type Acceptor[T any] func(T) bool

type entry[T any] struct {
	value    T
	storedAt time.Time
	ttl      time.Duration
	seq      uint64
}

type TTL[T any] struct {
	name       string
	maxEntries int
	validate   Validator[T]
	accept     Acceptor[T]
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry[T]
	seq     uint64
}

type Option[T any] func(*TTL[T])

func WithMaxEntries[T any](max int) Option[T] {
	return func(c *TTL[T]) {
		if max > 0 {
			c.maxEntries = max
		}
	}
}

func WithValidator[T any](v Validator[T]) Option[T] {
	return func(c *TTL[T]) {
		c.validate = v
	}
}

func WithAcceptor[T any](a Acceptor[T]) Option[T] {
	return func(c *TTL[T]) {
		c.accept = a
	}
}

func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *TTL[T]) {
		if now != nil {
			c.now = now
		}
	}
}

func NewTTL[T any](name string, opts ...Option[T]) *TTL[T] {
	c := &TTL[T]{
		name:       name,
		maxEntries: defaultMaxEntries,
		now:        time.Now,
		entries:    make(map[string]*entry[T]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for key. Expired and corrupted entries are
// evicted and reported as misses.
func (c *TTL[T]) Get(key string) (T, bool) {
	var zero T

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= e.ttl {
		delete(c.entries, key)
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		return zero, false
	}
	if c.validate != nil && !c.validate(e.value) {
		delete(c.entries, key)
		metrics.CacheCorruptionsTotal.WithLabelValues(c.name).Inc()
		metrics.CacheMissesTotal.WithLabelValues(c.name).Inc()
		return zero, false
	}
	metrics.CacheHitsTotal.WithLabelValues(c.name).Inc()
	return e.value, true
}

// Set stores value under key. Writes rejected by the acceptor are dropped
// with a diagnostic instead of poisoning the cache.
func (c *TTL[T]) Set(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if c.accept != nil && !c.accept(value) {
		slog.Debug("cache write dropped", slog.String("cache", c.name), slog.String("key", key))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.entries[key] = &entry[T]{
		value:    value,
		storedAt: c.now(),
		ttl:      ttl,
		seq:      c.seq,
	}
	c.evictLocked()
}

// Valid reports whether key holds an unexpired, uncorrupted entry. A
// corrupted entry is evicted as a side effect, so the caller's next Get
// misses and triggers a fresh fetch.
func (c *TTL[T]) Valid(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().Sub(e.storedAt) >= e.ttl {
		delete(c.entries, key)
		return false
	}
	if c.validate != nil && !c.validate(e.value) {
		delete(c.entries, key)
		metrics.CacheCorruptionsTotal.WithLabelValues(c.name).Inc()
		return false
	}
	return true
}

func (c *TTL[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *TTL[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[T])
}

func (c *TTL[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops the oldest-inserted entries until the size bound holds.
// FIFO is enough here: keys are deterministic request parameters, so any
// evicted value is re-derivable on the next miss.
func (c *TTL[T]) evictLocked() {
	for len(c.entries) > c.maxEntries {
		oldestKey := ""
		oldestSeq := uint64(0)
		first := true
		for key, e := range c.entries {
			if first || e.seq < oldestSeq {
				oldestKey = key
				oldestSeq = e.seq
				first = false
			}
		}
		delete(c.entries, oldestKey)
	}
}
