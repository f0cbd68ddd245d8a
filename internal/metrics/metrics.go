package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learntube_cache_lookups_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "expired", "error"
	)

	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learntube_youtube_requests_total",
			Help: "Outbound video provider calls by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: "ok", "quota", "denied", "not_found", "bad_request", "transient"
	)

	CredentialRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learntube_youtube_credential_rotations_total",
			Help: "Times a provider credential was marked exhausted and the cursor advanced",
		},
	)

	QuotaBreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "learntube_youtube_quota_breaker_trips_total",
			Help: "Times every credential was exhausted and the 24h quota flag was set",
		},
	)

	OracleRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learntube_oracle_requests_total",
			Help: "LLM calls by surface and outcome",
		},
		[]string{"surface", "outcome"},
	)

	OracleFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learntube_oracle_fallbacks_total",
			Help: "Times an oracle operation fell back to provider-only or static results",
		},
		[]string{"operation"},
	)

	StepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learntube_step_transitions_total",
			Help: "Roadmap step status writes by target status",
		},
		[]string{"status"},
	)

	ContentResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learntube_content_resolutions_total",
			Help: "Per-step content resolution outcomes",
		},
		[]string{"outcome"}, // "resolved", "already_fetched", "empty", "lost_race"
	)

	PrefetchJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learntube_prefetch_jobs_total",
			Help: "Background content prefetch jobs by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "learntube_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
