package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resource labels.
const (
	ResourceUser    = "user"
	ResourceImage   = "image"
	ResourcePosts   = "posts"
	ResourceSession = "session_token"
)

// Lookup outcome labels.
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeExpired = "expired"
	OutcomeError   = "error"
	OutcomeSuccess = "success"
)

var (
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_loader_cache_lookups_total",
			Help: "Local cache lookups by resource and outcome (hit, miss, expired, error).",
		},
		[]string{"resource", "outcome"},
	)

	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_loader_remote_requests_total",
			Help: "Remote backend requests by resource and outcome.",
		},
		[]string{"resource", "outcome"},
	)

	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "post_loader_remote_request_duration_seconds",
			Help:    "Latency of remote backend requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	FallbackActivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_loader_fallback_activations_total",
			Help: "Number of loads that fell through from the primary to the fallback loader.",
		},
		[]string{"resource"},
	)

	WriteThroughTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_loader_write_through_total",
			Help: "Write-through cache saves by resource and outcome.",
		},
		[]string{"resource", "outcome"},
	)

	ValidationEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "post_loader_cache_validation_evictions_total",
			Help: "User records removed by cache validation sweeps.",
		},
	)

	ValidationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_loader_cache_validation_runs_total",
			Help: "Cache validation sweeps by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)
)

// IncrementCacheLookup records one local cache read.
func IncrementCacheLookup(resource, outcome string) {
	CacheLookupsTotal.WithLabelValues(resource, outcome).Inc()
}

// ObserveRemoteRequest records the outcome and latency of one remote request.
func ObserveRemoteRequest(resource, outcome string, started time.Time) {
	RemoteRequestsTotal.WithLabelValues(resource, outcome).Inc()
	RemoteRequestDuration.WithLabelValues(resource).Observe(time.Since(started).Seconds())
}

func IncrementFallbackActivation(resource string) {
	FallbackActivationsTotal.WithLabelValues(resource).Inc()
}

func IncrementWriteThrough(resource, outcome string) {
	WriteThroughTotal.WithLabelValues(resource, outcome).Inc()
}

func AddValidationEvictions(n int) {
	if n > 0 {
		ValidationEvictionsTotal.Add(float64(n))
	}
}

func IncrementValidationRun(trigger, outcome string) {
	ValidationRunsTotal.WithLabelValues(trigger, outcome).Inc()
}
