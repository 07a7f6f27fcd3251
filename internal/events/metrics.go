package events

import "github.com/prometheus/client_golang/prometheus"

var (
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelbridge",
			Subsystem: "events",
			Name:      "frames_total",
			Help:      "Push frames received from the engine, by frame type",
		},
		[]string{"type"},
	)

	framesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelbridge",
			Subsystem: "events",
			Name:      "frames_dropped_total",
			Help:      "Push frames ignored, by reason (decode, unknown_type)",
		},
		[]string{"reason"},
	)

	subscriberDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "modelbridge",
			Subsystem: "events",
			Name:      "subscriber_drops_total",
			Help:      "Events not delivered because a channel subscriber was full",
		},
	)
)

func init() {
	prometheus.MustRegister(framesTotal, framesDroppedTotal, subscriberDropsTotal)
}
