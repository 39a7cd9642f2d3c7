package config

import (
	"time"

	"github.com/ividrine/tactics-api/pkg/ratelimit"
	"github.com/ividrine/tactics-api/pkg/register/etcd"
	"github.com/ividrine/tactics-api/pkg/xredis"
)

const ServiceName = "realtime-gateway"

// 总配置
type GatewayConfig struct {
	Name        string            `mapstructure:"name"`
	InstanceID  string            `mapstructure:"instance_id"` // 为空启动时生成 uuid
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	WS          WSConfig          `mapstructure:"ws"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Redis       xredis.Config     `mapstructure:"redis"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Presence    PresenceConfig    `mapstructure:"presence"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Trace       TraceConfig       `mapstructure:"trace"`
	Etcd        EtcdConfig        `mapstructure:"etcd"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	PprofAddr       string        `mapstructure:"pprof_addr"` // 为空不开
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // 每 ip+route 每秒
	RateBurst       int           `mapstructure:"rate_burst"`
}

type WSConfig struct {
	Path         string        `mapstructure:"path"`
	SendBuf      int           `mapstructure:"send_buf"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	ChatRate     float64       `mapstructure:"chat_rate"` // 每个玩家每秒 chat 条数
	ChatBurst    int           `mapstructure:"chat_burst"`
	AllowOrigins []string      `mapstructure:"allow_origins"` // 为空不校验
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

type BrokerConfig struct {
	Driver             string `mapstructure:"driver"` // redis | nats | mem
	NatsURL            string `mapstructure:"nats_url"`
	MatchmakingChannel string `mapstructure:"matchmaking_channel"`
	ChatPrefix         string `mapstructure:"chat_prefix"`
	Buffer             int    `mapstructure:"buffer"`
}

type PresenceConfig struct {
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	Refresh   time.Duration `mapstructure:"refresh"`
}

type MatchmakingConfig struct {
	Region        string         `mapstructure:"region"`
	Configuration string         `mapstructure:"configuration"` // matchmaking configuration name
	Timeout       time.Duration  `mapstructure:"timeout"`
	CacheTTL      time.Duration  `mapstructure:"cache_ttl"` // DescribePlayerSessions 结果缓存
	Breaker       ratelimit.Rule `mapstructure:"breaker"`
}

type WebhookConfig struct {
	TopicArns      []string      `mapstructure:"topic_arns"` // 为空不校验
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

type TraceConfig struct {
	Host string `mapstructure:"host"`
}

type EtcdConfig struct {
	etcd.Config `mapstructure:",squash"`
	Enabled     bool `mapstructure:"enabled"`
}

// Defaults 所有 key 都要在这里出现，否则环境变量覆盖不到
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"name":        ServiceName,
		"instance_id": "",

		"log.level": "info",
		"log.file":  "",

		"http.addr":             ":8080",
		"http.pprof_addr":       "",
		"http.shutdown_timeout": 10 * time.Second,
		"http.rate_limit":       50.0,
		"http.rate_burst":       100,

		"ws.path":          "/ws",
		"ws.send_buf":      256,
		"ws.read_limit":    int64(4 << 10),
		"ws.pong_wait":     60 * time.Second,
		"ws.ping_period":   30 * time.Second,
		"ws.write_wait":    5 * time.Second,
		"ws.chat_rate":     5.0,
		"ws.chat_burst":    10,
		"ws.allow_origins": []string{},

		"jwt.secret":   "",
		"jwt.issuer":   "",
		"jwt.audience": "",
		"jwt.leeway":   5 * time.Second,

		"redis.addr":           "",
		"redis.password":       "",
		"redis.db":             0,
		"redis.pool_size":      100,
		"redis.min_idle_conns": 10,

		"broker.driver":              "redis",
		"broker.nats_url":            "nats://127.0.0.1:4222",
		"broker.matchmaking_channel": "matchmaking",
		"broker.chat_prefix":         "chat",
		"broker.buffer":              4096,

		"presence.key_prefix": "user:",
		"presence.ttl":        time.Hour,
		"presence.refresh":    20 * time.Minute,

		"matchmaking.region":                            "us-east-1",
		"matchmaking.configuration":                     "",
		"matchmaking.timeout":                           3 * time.Second,
		"matchmaking.cache_ttl":                         2 * time.Second,
		"matchmaking.breaker.max_requests":              5,
		"matchmaking.breaker.interval":                  10 * time.Second,
		"matchmaking.breaker.bucket_period":             0,
		"matchmaking.breaker.timeout":                   5 * time.Second,
		"matchmaking.breaker.trip_consecutive_failures": 5,
		"matchmaking.breaker.trip_failure_rate":         0.0,
		"matchmaking.breaker.trip_min_requests":         20,

		"webhook.topic_arns":      []string{},
		"webhook.confirm_timeout": 5 * time.Second,

		"trace.host": "",

		"etcd.enabled":      false,
		"etcd.endpoints":    []string{"127.0.0.1:2379"},
		"etcd.base_path":    "/tactics/services",
		"etcd.ttl":          10,
		"etcd.dial_timeout": 5 * time.Second,
	}
}
