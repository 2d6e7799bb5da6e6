// Package telemetry exposes the cache engine's Prometheus metrics.
//
// Grounded on
// wibus-wee-mcpv/internal/infra/telemetry/prometheus.go's promauto.With
// factory pattern: one struct of pre-registered vectors, built once at
// construction, updated via small Observe/Set methods so callers never
// touch the prometheus API directly.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the cache engine's Prometheus surface.
type Metrics struct {
	tickDuration       prometheus.Histogram
	tickFailures       *prometheus.CounterVec
	registrySize       prometheus.Gauge
	expiredNamespaces  prometheus.Gauge
	feedbackApplied    *prometheus.CounterVec
	reconnects         prometheus.Counter
	persistedSnapshots prometheus.Counter
}

// New builds and registers the cache engine's metrics against registerer.
// A nil registerer falls back to prometheus.DefaultRegisterer, matching the
// teacher's constructor.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mastermindcache_refresh_tick_duration_seconds",
			Help:    "Duration of one background refresh tick",
			Buckets: prometheus.DefBuckets,
		}),
		tickFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mastermindcache_refresh_tick_failures_total",
			Help: "Total refresh failures, by stage (fetch: a tick's namespace fetch; build: one namespace's snapshot)",
		}, []string{"stage"}),
		registrySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mastermindcache_registry_namespaces",
			Help: "Number of namespaces currently held in the registry",
		}),
		expiredNamespaces: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mastermindcache_registry_expired_namespaces",
			Help: "Number of namespaces currently marked expired",
		}),
		feedbackApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mastermindcache_feedback_applied_total",
			Help: "Total SetFeedback calls, by outcome",
		}, []string{"outcome"}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "mastermindcache_transport_reconnects_total",
			Help: "Total successful connects and reconnects made by the RPC transport",
		}),
		persistedSnapshots: factory.NewCounter(prometheus.CounterOpts{
			Name: "mastermindcache_persistence_saves_total",
			Help: "Total successful writes of cache state to disk",
		}),
	}
}

func (m *Metrics) ObserveTick(duration time.Duration) {
	m.tickDuration.Observe(duration.Seconds())
}

func (m *Metrics) ObserveTickFailure(stage string) {
	m.tickFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) SetRegistrySize(count int) {
	m.registrySize.Set(float64(count))
}

func (m *Metrics) SetExpiredNamespaces(count int) {
	m.expiredNamespaces.Set(float64(count))
}

func (m *Metrics) ObserveFeedback(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.feedbackApplied.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncReconnect() {
	m.reconnects.Inc()
}

func (m *Metrics) IncPersistedSnapshot() {
	m.persistedSnapshots.Inc()
}
