package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Metrics are constructed eagerly so instrumented code paths work before
// (or without) registration; Register wires them to a registry.
var (
	OBOExchangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ariagate_obo_exchanges_total",
		Help: "Total number of on-behalf-of exchanges, by outcome.",
	}, []string{"outcome"})

	DelegatedCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ariagate_delegated_cache_hits_total",
		Help: "Delegated token cache hits.",
	})

	DelegatedCacheMissTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ariagate_delegated_cache_misses_total",
		Help: "Delegated token cache misses (including expiries).",
	})

	TokenRefreshesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ariagate_token_refreshes_total",
		Help: "Principal token refresh grants, by outcome.",
	}, []string{"outcome"})

	DownstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ariagate_downstream_requests_total",
		Help: "Downstream API calls, by method and status family.",
	}, []string{"method", "status_family"})

	DownstreamLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ariagate_downstream_latency_seconds",
		Help:    "Downstream API call latency.",
		Buckets: prometheus.DefBuckets,
	})
)

// Register attaches the gateway metrics to the given registry. It should
// be called once at application startup.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range []prometheus.Collector{
		OBOExchangesTotal,
		DelegatedCacheHitsTotal,
		DelegatedCacheMissTotal,
		TokenRefreshesTotal,
		DownstreamRequestsTotal,
		DownstreamLatency,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}
}
