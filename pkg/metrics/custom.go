package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitBlockTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tactics",
			Name:      "ratelimit_block_total",
			Help:      "Total number of rate limit blocks.",
		},
		[]string{"service", "route", "reason"},
	)

	CBRejectTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tactics",
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of circuit breaker rejections.",
		},
		[]string{"service", "method", "reason"},
	)

	CBState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tactics",
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"service", "method", "state"}, // state: closed/open/half_open
	)
)
