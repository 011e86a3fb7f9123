package seal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timevault",
			Subsystem: "seal",
			Name:      "evaluations_total",
			Help:      "Envelope evaluations by outcome (locked, available, error).",
		},
		[]string{"outcome"},
	)

	unlockTransitionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "timevault",
			Subsystem: "seal",
			Name:      "unlock_transitions_total",
			Help:      "Messages moved from LOCKED to UNLOCKED.",
		},
	)

	integrityFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "timevault",
			Subsystem: "seal",
			Name:      "integrity_failures_total",
			Help:      "Reveals withheld because content failed verification.",
		},
	)
)
