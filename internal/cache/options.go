package cache

import "github.com/prometheus/client_golang/prometheus"

type cacheOptions[K comparable, V any] struct {
	evictCallback EvictCallback[K, V]
	metricsReg    prometheus.Registerer
	metricsPrefix string
}

// Option configures a cache
type Option[K comparable, V any] func(*cacheOptions[K, V])

// WithEvictCallback registers a callback invoked for every capacity eviction
func WithEvictCallback[K comparable, V any](fn EvictCallback[K, V]) Option[K, V] {
	return func(o *cacheOptions[K, V]) {
		o.evictCallback = fn
	}
}

// WithMetrics exposes cache statistics as prometheus metrics named <prefix>_cache_*
func WithMetrics[K comparable, V any](reg prometheus.Registerer, prefix string) Option[K, V] {
	return func(o *cacheOptions[K, V]) {
		o.metricsReg = reg
		o.metricsPrefix = prefix
	}
}
