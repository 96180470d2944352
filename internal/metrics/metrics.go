// Package metrics provides Prometheus metrics for the race between origin and mirror.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RacesTotal counts intercepted requests by outcome (direct, mirror, failed, bypass).
	RacesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdnrace_requests_total",
			Help: "Total number of intercepted requests by outcome",
		},
		[]string{"outcome"},
	)

	// RaceDuration tracks the time until a race settled, by outcome.
	RaceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cdnrace_race_duration_seconds",
			Help:    "Time until the race settled in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"outcome"},
	)

	// MirrorFallbacksTotal counts not-found answers replaced by the fallback page.
	MirrorFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cdnrace_mirror_fallbacks_total",
			Help: "Total mirror not-found responses that triggered a fallback page fetch",
		},
	)

	// MirrorAvailable is 1 while the mirror circuit breaker is closed.
	MirrorAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cdnrace_mirror_available",
			Help: "Whether the mirror circuit breaker is closed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RacesTotal,
		RaceDuration,
		MirrorFallbacksTotal,
		MirrorAvailable,
	)

	MirrorAvailable.Set(1)
}

// ObserveRace records the outcome of a single intercepted request.
func ObserveRace(outcome string, took time.Duration) {
	RacesTotal.WithLabelValues(outcome).Inc()
	RaceDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
