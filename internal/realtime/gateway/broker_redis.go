package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker SUBSCRIBE + PSUBSCRIBE，多实例共享一个 redis
type RedisBroker struct {
	rdb    redis.UniversalClient
	buffer int
}

func NewRedisBroker(rdb redis.UniversalClient, buffer int) *RedisBroker {
	if buffer <= 0 {
		buffer = 4096
	}
	return &RedisBroker{rdb: rdb, buffer: buffer}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, sub Subscription) (<-chan Message, error) {
	ps := b.rdb.Subscribe(ctx)
	if len(sub.Channels) > 0 {
		if err := ps.Subscribe(ctx, sub.Channels...); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("subscribe %v: %w", sub.Channels, err)
		}
	}
	if len(sub.Patterns) > 0 {
		if err := ps.PSubscribe(ctx, sub.Patterns...); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("psubscribe %v: %w", sub.Patterns, err)
		}
	}

	// 等服务端确认每一个订阅，确认之前的 publish 会丢
	confirmCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for i := 0; i < len(sub.Channels)+len(sub.Patterns); i++ {
		msg, err := ps.Receive(confirmCtx)
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("confirm subscription: %w", err)
		}
		if _, ok := msg.(*redis.Subscription); !ok {
			_ = ps.Close()
			return nil, fmt.Errorf("confirm subscription: unexpected %T", msg)
		}
	}

	in := ps.Channel(redis.WithChannelSize(b.buffer))
	out := make(chan Message, b.buffer)
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					logger.Warn(ctx, "redis pubsub channel closed")
					return
				}
				offer(out, Message{Channel: m.Channel, Pattern: m.Pattern, Payload: []byte(m.Payload)})
			}
		}
	}()
	logger.Info(ctx, "redis broker subscribed",
		zap.Strings("channels", sub.Channels),
		zap.Strings("patterns", sub.Patterns),
	)
	return out, nil
}

// Close 连接由 app 统一关闭
func (b *RedisBroker) Close() error { return nil }
