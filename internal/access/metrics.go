package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "grid",
	Subsystem: "access",
	Name:      "decisions_total",
	Help:      "Access decisions broken down by operation and result.",
}, []string{"operation", "result"})

func recordDecision(op Operation, result string) {
	decisions.With(prometheus.Labels{
		"operation": string(op),
		"result":    result,
	}).Inc()
}
