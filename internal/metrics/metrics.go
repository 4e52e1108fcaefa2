// Package metrics exposes the daemon's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder interface {
	ObserveRun(trigger, result string, d time.Duration)
	IncFetchFailures()
	SetInterruptions(n int)
	IncNotifications(channel string)
	IncCacheHits()
	IncCacheMisses()
}

type Provider struct {
	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	fetchFailures    prometheus.Counter
	interruptions    prometheus.Gauge
	notificationsSum *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
}

// New registers the instruments on reg. A disabled provider or a nil
// registry yields a recorder that drops everything.
func New(enabled bool, reg prometheus.Registerer) Recorder {
	if !enabled || reg == nil {
		return Noop()
	}
	f := promauto.With(reg)
	return &Provider{
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "waterwatch_runs_total",
			Help: "Pipeline runs by trigger and result",
		}, []string{"trigger", "result"}),

		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "waterwatch_run_duration_seconds",
			Help:    "Duration of one pipeline run in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		fetchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "waterwatch_fetch_failures_total",
			Help: "Upstream location fetches that failed or returned an unusable body",
		}),

		interruptions: f.NewGauge(prometheus.GaugeOpts{
			Name: "waterwatch_interruptions",
			Help: "Relevant interruptions found by the last completed run",
		}),

		notificationsSum: f.NewCounterVec(prometheus.CounterOpts{
			Name: "waterwatch_notifications_total",
			Help: "Notifications delivered per channel",
		}, []string{"channel"}),

		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "waterwatch_upstream_cache_hits_total",
			Help: "Upstream responses served from the response cache",
		}),

		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "waterwatch_upstream_cache_misses_total",
			Help: "Upstream lookups that missed the response cache",
		}),
	}
}

func (m *Provider) ObserveRun(trigger, result string, d time.Duration) {
	m.runsTotal.WithLabelValues(trigger, result).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Provider) IncFetchFailures()               { m.fetchFailures.Inc() }
func (m *Provider) SetInterruptions(n int)          { m.interruptions.Set(float64(n)) }
func (m *Provider) IncNotifications(channel string) { m.notificationsSum.WithLabelValues(channel).Inc() }
func (m *Provider) IncCacheHits()                   { m.cacheHits.Inc() }
func (m *Provider) IncCacheMisses()                 { m.cacheMisses.Inc() }

// Noop returns a recorder for when metrics are disabled.
func Noop() Recorder { return noopMetrics{} }

type noopMetrics struct{}

func (noopMetrics) ObserveRun(_, _ string, _ time.Duration) {}
func (noopMetrics) IncFetchFailures()                       {}
func (noopMetrics) SetInterruptions(_ int)                  {}
func (noopMetrics) IncNotifications(_ string)               {}
func (noopMetrics) IncCacheHits()                           {}
func (noopMetrics) IncCacheMisses()                         {}
