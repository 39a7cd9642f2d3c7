package gateway

import (
	"context"
	"fmt"
)

// Message Pattern 为空表示来自精确订阅的频道
type Message struct {
	Channel string
	Pattern string
	Payload []byte
}

type Subscription struct {
	Channels []string
	Patterns []string // glob，例如 "chat:*"
}

// Broker at-most-once，慢消费者直接丢
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe 返回前订阅已生效；ctx 结束后取消订阅并关闭 channel
	Subscribe(ctx context.Context, sub Subscription) (<-chan Message, error)
	Close() error
}

const (
	DriverRedis = "redis"
	DriverNats  = "nats"
	DriverMem   = "mem"
)

func validDriver(d string) error {
	switch d {
	case DriverRedis, DriverNats, DriverMem:
		return nil
	default:
		return fmt.Errorf("unknown broker driver %q", d)
	}
}
