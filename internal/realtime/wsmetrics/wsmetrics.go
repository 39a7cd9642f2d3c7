package wsmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Conns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_conns",
		Help: "Active websocket connections",
	})
	ConnOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_conn_open_total",
		Help: "Total websocket connections opened",
	})
	ConnCloseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_conn_close_total",
		Help: "Total websocket connections closed, partitioned by close code and reason",
	}, []string{"code", "reason"})
	AuthFailTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_auth_fail_total",
		Help: "Handshakes rejected with 1008",
	})

	FramesInTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_frames_in_total",
		Help: "Inbound client frames by type",
	}, []string{"type"}) // join/chat/leave/unknown/invalid
	ErrorFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_error_frames_total",
		Help: "Error frames sent to clients",
	}, []string{"message"})

	MsgsOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_msgs_out_total",
		Help: "Total websocket messages sent out",
	})
	BytesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_bytes_out_total",
		Help: "Total websocket bytes sent out",
	})
	WriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_write_errors_total",
		Help: "Total websocket write errors",
	})
	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_dropped_total",
		Help: "Total dropped messages",
	}, []string{"why"}) // offline/backpressure/closed

	PingSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_ping_sent_total",
		Help: "Total ping sent",
	})
	PingErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_ping_errors_total",
		Help: "Total ping send errors",
	})
	PongRecvTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_pong_recv_total",
		Help: "Total pong received",
	})
	PongTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_pong_timeout_total",
		Help: "Total pong timeouts",
	})

	WriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ws_write_duration_seconds",
		Help:    "Duration of a websocket frame write",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms -> ~4s
	})

	BrokerMsgsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_msgs_total",
		Help: "Broker messages by direction and kind",
	}, []string{"dir", "kind"}) // dir: in/out, kind: chat/matchmaking
	BrokerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_errors_total",
		Help: "Broker publish / decode errors",
	}, []string{"op"})

	MatchDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "match_deliveries_total",
		Help: "Match event payloads routed to players",
	}, []string{"type", "result"}) // result: sent/offline
)

func OnOpen() {
	Conns.Inc()
	ConnOpenTotal.Inc()
}

func OnClose(code int, reason string) {
	Conns.Dec()
	ConnCloseTotal.WithLabelValues(strconv.Itoa(code), reason).Inc()
}

func ObserveWrite(bytes int, dur time.Duration, err error) {
	WriteDuration.Observe(dur.Seconds())
	if err != nil {
		WriteErrorsTotal.Inc()
		return
	}
	MsgsOutTotal.Inc()
	if bytes > 0 {
		BytesOutTotal.Add(float64(bytes))
	}
}
