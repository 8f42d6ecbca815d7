package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "usersearch", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "usersearch", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	// SearchRequests counts store calls by operation and outcome (ok|not_found|error).
	SearchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "usersearch", Name: "search_requests_total", Help: "Search store calls by operation and outcome."},
		[]string{"op", "outcome"},
	)
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "usersearch", Name: "search_request_duration_seconds", Help: "Search store call latency.", Buckets: prometheus.DefBuckets},
		[]string{"op"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "usersearch", Name: "cache_lookups_total", Help: "User cache lookups by result (hit|miss|error)."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SearchRequests)
	reg.MustRegister(SearchDuration)
	reg.MustRegister(CacheLookups)
}
