// Package cache provides the bounded generic LRU used for the pool-verdict
// cache, the receipt cache, and the in-memory retry-count table.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// MetricsRecorder receives hit/miss/evict notifications. nil is a valid,
// no-op recorder.
type MetricsRecorder interface {
	RecordHit()
	RecordMiss()
	RecordEviction()
}

// LRU is a size-bounded, thread-safe cache with optional metrics hooks.
type LRU[K comparable, V any] struct {
	inner   *lru.Cache[K, V]
	metrics MetricsRecorder
}

// New builds an LRU capped at size entries. size must be positive.
func New[K comparable, V any](size int, metrics MetricsRecorder) (*LRU[K, V], error) {
	c := &LRU[K, V]{metrics: metrics}
	inner, err := lru.NewWithEvict[K, V](size, func(K, V) {
		if metrics != nil {
			metrics.RecordEviction()
		}
	})
	if err != nil {
		return nil, err
	}
	c.inner = inner
	return c, nil
}

// Get returns the cached value and whether it was present, recording a
// hit or miss against the configured MetricsRecorder.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.inner.Get(key)
	if c.metrics != nil {
		if ok {
			c.metrics.RecordHit()
		} else {
			c.metrics.RecordMiss()
		}
	}
	return v, ok
}

// Add inserts or updates key's value.
func (c *LRU[K, V]) Add(key K, value V) {
	c.inner.Add(key, value)
}

// Remove evicts key, if present.
func (c *LRU[K, V]) Remove(key K) {
	c.inner.Remove(key)
}

// Len reports the current number of entries.
func (c *LRU[K, V]) Len() int {
	return c.inner.Len()
}
