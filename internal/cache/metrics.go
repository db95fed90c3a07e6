package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_cache_hits_total",
			Help: "State cache lookups served from memory",
		},
		[]string{"kind"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_cache_misses_total",
			Help: "State cache lookups that found nothing fresh",
		},
		[]string{"kind"},
	)
	cacheExpired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_cache_expired_total",
			Help: "Entries dropped because their TTL elapsed",
		},
		[]string{"kind"},
	)
	cacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_cache_evictions_total",
			Help: "Fresh entries dropped by capacity cleanup",
		},
		[]string{"kind"},
	)
	snapshotErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_store_errors_total",
			Help: "Redis snapshot tier failures (fail-open)",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(cacheExpired)
	prometheus.MustRegister(cacheEvictions)
	prometheus.MustRegister(snapshotErrors)
}
