package chain

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	rpcRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_rpc_retries_total",
			Help: "Contract reads retried after a rate-limit signal",
		},
		[]string{"method"},
	)
	rpcFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_rpc_failures_total",
			Help: "Contract reads that fell back to a default value",
		},
		[]string{"method", "reason"},
	)
	userGamesSource = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_user_games_lookups_total",
			Help: "User game lookups by resolution path",
		},
		[]string{"source"},
	)
	txOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_tx_total",
			Help: "Submitted transactions by action and outcome",
		},
		[]string{"action", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(rpcRetries)
	prometheus.MustRegister(rpcFailures)
	prometheus.MustRegister(userGamesSource)
	prometheus.MustRegister(txOutcomes)
}

func failureReason(err error) string {
	switch {
	case IsRateLimited(err):
		return "rate_limited"
	case IsNotFound(err):
		return "not_found"
	case IsNotVisible(err):
		return "not_visible"
	default:
		return "error"
	}
}
