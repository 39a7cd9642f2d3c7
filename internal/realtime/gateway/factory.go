package gateway

import (
	"errors"
	"time"

	"github.com/ividrine/tactics-api/internal/realtime/config"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// NewBroker 按配置选实现；redis 驱动复用 app 的 redis 连接
func NewBroker(c config.BrokerConfig, rdb redis.UniversalClient) (Broker, error) {
	if err := validDriver(c.Driver); err != nil {
		return nil, err
	}
	switch c.Driver {
	case DriverRedis:
		if rdb == nil {
			return nil, errors.New("broker driver redis requires redis.addr")
		}
		return NewRedisBroker(rdb, c.Buffer), nil
	case DriverNats:
		return NewNatsBroker(c.NatsURL, c.Buffer,
			nats.Name(config.ServiceName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
		)
	default:
		return NewMemBroker(c.Buffer), nil
	}
}
