// Package cache provides a bounded, thread-safe key/value cache with a
// pluggable eviction policy.
//
// A policy owns per-key metadata: it creates metadata when a key is first
// inserted, updates it on every read hit and picks the victim when an insert
// would exceed capacity. All operations on one cache share a single mutex.
package cache

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNilKey is returned when the zero value is used as a key
var ErrNilKey = errors.New("cache: nil key")

// Policy decides which key to evict. M is the policy's per-key metadata.
type Policy[K comparable, M any] interface {
	// Created returns the metadata for a newly inserted key
	Created(key K) M
	// Accessed returns the metadata for a key that was just read
	Accessed(key K, meta M) M
	// Victim picks the key to evict from the full metadata mapping.
	// Returning false, or a key that is not resident, makes the cache evict an arbitrary key.
	Victim(entries map[K]M) (K, bool)
}

// EvictCallback is called, outside the lock, for every evicted entry
type EvictCallback[K comparable, V any] func(key K, value V)

// Entry is a snapshot of a resident entry
type Entry[K comparable, V any] struct {
	Key   K
	Value V
	Meta  any
}

// Cache is a bounded key/value map
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	values   map[K]V
	tracker  tracker[K]
	stats    *Statistics
	metrics  *cacheMetrics
	evictFn  EvictCallback[K, V]
}

// New creates a cache holding at most capacity entries
func New[K comparable, V any, M any](capacity int, policy Policy[K, M], opts ...Option[K, V]) (*Cache[K, V], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("cache capacity must be at least 1, got %d", capacity)
	}
	if policy == nil {
		return nil, fmt.Errorf("cache policy is required")
	}

	options := &cacheOptions[K, V]{}
	for _, opt := range opts {
		opt(options)
	}

	var metrics *cacheMetrics
	if options.metricsReg != nil && options.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(options.metricsReg, options.metricsPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to register cache metrics: %w", err)
		}
	}

	return &Cache[K, V]{
		capacity: capacity,
		values:   make(map[K]V, capacity),
		tracker:  &policyTracker[K, M]{policy: policy, meta: make(map[K]M, capacity)},
		stats:    NewStatistics(),
		metrics:  metrics,
		evictFn:  options.evictCallback,
	}, nil
}

func isNil[K comparable](key K) bool {
	var zero K
	return key == zero
}

// Put stores value under key, evicting one entry when the cache is full
func (c *Cache[K, V]) Put(key K, value V) error {
	if isNil(key) {
		return ErrNilKey
	}

	c.mu.Lock()
	if _, exists := c.values[key]; exists {
		c.values[key] = value
		c.stats.set()
		c.mu.Unlock()
		return nil
	}

	var evictedKey K
	var evictedValue V
	evicted := false
	if len(c.values) >= c.capacity {
		evictedKey, evictedValue = c.evictUnsafe()
		evicted = true
	}

	c.values[key] = value
	c.tracker.insert(key)
	c.stats.set()
	c.stats.updateSize(len(c.values))
	if c.metrics != nil {
		c.metrics.updateSize(len(c.values))
	}
	c.mu.Unlock()

	if evicted && c.evictFn != nil {
		c.evictFn(evictedKey, evictedValue)
	}
	return nil
}

// evictUnsafe removes the policy's victim, or an arbitrary key when the
// victim is invalid. The cache must be locked and non-empty.
func (c *Cache[K, V]) evictUnsafe() (K, V) {
	victim, ok := c.tracker.victim()
	if _, resident := c.values[victim]; !ok || isNil(victim) || !resident {
		for k := range c.values {
			victim = k
			break
		}
	}

	value := c.values[victim]
	delete(c.values, victim)
	c.tracker.remove(victim)
	c.stats.eviction()
	if c.metrics != nil {
		c.metrics.recordEviction()
	}
	return victim, value
}

// Get returns the value for key. A hit updates the key's policy metadata;
// a miss has no side effects beyond statistics.
func (c *Cache[K, V]) Get(key K) (V, bool, error) {
	var zero V
	if isNil(key) {
		return zero, false, ErrNilKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.values[key]
	if !ok {
		c.stats.miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false, nil
	}

	c.tracker.access(key)
	c.stats.hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return value, true, nil
}

// Delete removes key, reporting whether it was resident
func (c *Cache[K, V]) Delete(key K) (bool, error) {
	if isNil(key) {
		return false, ErrNilKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.values[key]; !ok {
		return false, nil
	}
	delete(c.values, key)
	c.tracker.remove(key)
	c.stats.updateSize(len(c.values))
	if c.metrics != nil {
		c.metrics.updateSize(len(c.values))
	}
	return true, nil
}

// Clear removes every entry and its metadata
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = make(map[K]V, c.capacity)
	c.tracker.clear()
	c.stats.updateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
}

// Entries returns a snapshot of every resident entry with its metadata
func (c *Cache[K, V]) Entries() []Entry[K, V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry[K, V], 0, len(c.values))
	for k, v := range c.values {
		entries = append(entries, Entry[K, V]{Key: k, Value: v, Meta: c.tracker.metadata(k)})
	}
	return entries
}

// Len returns the number of resident entries
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Capacity returns the maximum number of entries
func (c *Cache[K, V]) Capacity() int {
	return c.capacity
}

// Stats returns a snapshot of the cache statistics
func (c *Cache[K, V]) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// tracker hides the policy metadata type from the cache
type tracker[K comparable] interface {
	insert(key K)
	access(key K)
	remove(key K)
	victim() (K, bool)
	metadata(key K) any
	clear()
}

type policyTracker[K comparable, M any] struct {
	policy Policy[K, M]
	meta   map[K]M
}

func (t *policyTracker[K, M]) insert(key K) {
	t.meta[key] = t.policy.Created(key)
}

func (t *policyTracker[K, M]) access(key K) {
	t.meta[key] = t.policy.Accessed(key, t.meta[key])
}

func (t *policyTracker[K, M]) remove(key K) {
	delete(t.meta, key)
}

func (t *policyTracker[K, M]) victim() (K, bool) {
	return t.policy.Victim(t.meta)
}

func (t *policyTracker[K, M]) metadata(key K) any {
	return t.meta[key]
}

func (t *policyTracker[K, M]) clear() {
	t.meta = make(map[K]M)
}
