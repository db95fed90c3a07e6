package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_bridge_dispatched_total",
			Help: "Contract events delivered to at least one subscriber",
		},
		[]string{"kind"},
	)
	pollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_bridge_poll_errors_total",
			Help: "Event poll failures by stage",
		},
		[]string{"stage"},
	)
	blockCursor = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_bridge_next_block",
			Help: "Next block the event bridge will fetch",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsDispatched)
	prometheus.MustRegister(pollErrors)
	prometheus.MustRegister(blockCursor)
}
