package xredis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ividrine/tactics-api/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// MetricsHook 记录每条命令耗时；redis.Nil 不算错误
type MetricsHook struct{}

func (MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		observe(cmd.Name(), start, err)
		return err
	}
}

func (MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		observe("pipeline", start, err)
		return err
	}
}

func observe(cmd string, start time.Time, err error) {
	status := "ok"
	if err != nil && !errors.Is(err, redis.Nil) {
		status = "error"
		metrics.RedisErrors.WithLabelValues(cmd).Inc()
	}
	metrics.RedisCmdDuration.WithLabelValues(cmd, status).Observe(time.Since(start).Seconds())
}
