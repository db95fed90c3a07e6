package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_refreshes_total",
			Help: "Authoritative game fetches by trigger",
		},
		[]string{"trigger"},
	)
	staleResults = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_stale_results_total",
			Help: "Fetch results discarded because a newer request was dispatched",
		},
	)
	optimisticPatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_optimistic_patches_total",
			Help: "Local patches applied ahead of an authoritative fetch",
		},
		[]string{"kind"},
	)
	autoUnsticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_auto_unstick_total",
			Help: "Automatic timeout claims by outcome",
		},
		[]string{"outcome"},
	)
	myGamesPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "my_games_polls_total",
			Help: "My-games polls by resulting cadence tier",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(refreshes)
	prometheus.MustRegister(staleResults)
	prometheus.MustRegister(optimisticPatches)
	prometheus.MustRegister(autoUnsticks)
	prometheus.MustRegister(myGamesPolls)
}
