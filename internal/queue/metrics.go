package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "modelbridge",
			Subsystem: "queue",
			Name:      "pending",
			Help:      "Operations waiting for their turn",
		},
		[]string{"queue"},
	)

	queueOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelbridge",
			Subsystem: "queue",
			Name:      "operations_total",
			Help:      "Operations finished, by outcome (ok, error, panic, canceled, closed)",
		},
		[]string{"queue", "op", "outcome"},
	)

	queueWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelbridge",
			Subsystem: "queue",
			Name:      "wait_seconds",
			Help:      "Time between submission and start of an operation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue", "op"},
	)

	queueRun = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelbridge",
			Subsystem: "queue",
			Name:      "run_seconds",
			Help:      "Execution time of an operation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"queue", "op"},
	)
)

func init() {
	prometheus.MustRegister(queueDepth, queueOpsTotal, queueWait, queueRun)
}
