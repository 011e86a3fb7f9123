package timeauth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	beaconRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timevault",
			Subsystem: "beacon",
			Name:      "requests_total",
			Help:      "Beacon HTTP requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	paramsCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timevault",
			Subsystem: "beacon",
			Name:      "params_cache_total",
			Help:      "Chain parameter lookups served from cache (hit) or refetched (miss).",
		},
		[]string{"result"},
	)
)
