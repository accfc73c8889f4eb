package cache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Statistics tracks cache activity. Always enabled.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
	size      atomic.Int64
}

// StatsSnapshot is a point in time copy of Statistics
type StatsSnapshot struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Size      int64
}

// HitRatio returns hits / (hits + misses), or 0 without lookups
func (s StatsSnapshot) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// NewStatistics creates zeroed statistics
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) hit()                { s.hits.Add(1) }
func (s *Statistics) miss()               { s.misses.Add(1) }
func (s *Statistics) set()                { s.sets.Add(1) }
func (s *Statistics) eviction()           { s.evictions.Add(1) }
func (s *Statistics) updateSize(size int) { s.size.Store(int64(size)) }

// Snapshot copies the current counters
func (s *Statistics) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Evictions: s.evictions.Load(),
		Size:      s.size.Load(),
	}
}

type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCacheMetrics(reg prometheus.Registerer, prefix string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_cache_hits_total",
			Help: "Total cache lookups that found a resident entry",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_cache_misses_total",
			Help: "Total cache lookups that found nothing",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_cache_evictions_total",
			Help: "Total entries evicted to respect capacity",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_cache_entries",
			Help: "Current number of resident entries",
		}),
	}
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.evictions, m.size} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *cacheMetrics) recordHit()          { m.hits.Inc() }
func (m *cacheMetrics) recordMiss()         { m.misses.Inc() }
func (m *cacheMetrics) recordEviction()     { m.evictions.Inc() }
func (m *cacheMetrics) updateSize(size int) { m.size.Set(float64(size)) }
