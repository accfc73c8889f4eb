package repository

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds prometheus metrics for the persistence service. A nil
// *Metrics records nothing.
type Metrics struct {
	loadsTotal        *prometheus.CounterVec
	loadDuration      *prometheus.HistogramVec
	persistsTotal     *prometheus.CounterVec
	migrationsApplied *prometheus.CounterVec
	skippedTotal      *prometheus.CounterVec
	notifyPanics      prometheus.Counter
}

// NewMetrics creates and registers the persistence metrics. It returns nil
// for a nil registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		loadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitystore_loads_total",
				Help: "Total entity loads by outcome",
			},
			[]string{"entity_type", "result"},
		),
		loadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "entitystore_load_duration_seconds",
				Help:    "Duration of entity loads that missed the cache",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"entity_type"},
		),
		persistsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitystore_persists_total",
				Help: "Total persist calls by outcome",
			},
			[]string{"entity_type", "result"},
		),
		migrationsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitystore_migrations_applied_total",
				Help: "Total document migration steps applied while loading",
			},
			[]string{"entity_type"},
		),
		skippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitystore_getall_skipped_total",
				Help: "Total stored records skipped by GetAll because they could not be loaded",
			},
			[]string{"entity_type"},
		),
		notifyPanics: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "entitystore_listener_panics_total",
				Help: "Total change listeners that panicked",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.loadsTotal, m.loadDuration, m.persistsTotal, m.migrationsApplied, m.skippedTotal, m.notifyPanics,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordLoad(entityType, result string) {
	if m == nil {
		return
	}
	m.loadsTotal.WithLabelValues(entityType, result).Inc()
}

func (m *Metrics) observeLoad(entityType string, started time.Time) {
	if m == nil {
		return
	}
	m.loadDuration.WithLabelValues(entityType).Observe(time.Since(started).Seconds())
}

func (m *Metrics) recordPersist(entityType, result string) {
	if m == nil {
		return
	}
	m.persistsTotal.WithLabelValues(entityType, result).Inc()
}

func (m *Metrics) recordMigrations(entityType string, applied int) {
	if m == nil || applied == 0 {
		return
	}
	m.migrationsApplied.WithLabelValues(entityType).Add(float64(applied))
}

func (m *Metrics) recordSkipped(entityType string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(entityType).Inc()
}

func (m *Metrics) recordListenerPanic() {
	if m == nil {
		return
	}
	m.notifyPanics.Inc()
}
