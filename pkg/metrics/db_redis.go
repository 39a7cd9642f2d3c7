package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RedisPoolOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "app_redis_pool_open",
		Help: "Current open redis connections",
	})
	RedisPoolIdle     = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_idle"})
	RedisPoolStale    = promauto.NewGauge(prometheus.GaugeOpts{Name: "app_redis_pool_stale"})
	RedisPoolTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "app_redis_pool_timeouts_total",
		Help: "Times a connection could not be taken from the pool in time",
	})

	RedisCmdDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "app_redis_cmd_duration_seconds",
		Help:    "Redis command latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms ~ 16s
	}, []string{"cmd", "status"})
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "app_redis_errors_total",
		Help: "Redis errors",
	}, []string{"cmd"})
)
