package xredis

import (
	"context"
	"fmt"
	"time"

	"github.com/ividrine/tactics-api/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// NewRedis 建连并 Ping，失败直接返回错误（启动失败，不降级）
func NewRedis(ctx context.Context, c *Config) (*redis.Client, error) {
	poolSize := c.PoolSize
	if poolSize <= 0 {
		poolSize = 100
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     poolSize,
		MinIdleConns: c.MinIdleConns,
	})
	rdb.AddHook(MetricsHook{})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect redis %s: %w", c.Addr, err)
	}
	return rdb, nil
}

// ObserveStats 每 5s 采集一次连接池指标，ctx 结束退出
func ObserveStats(ctx context.Context, rdb *redis.Client) {
	go func() {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		var lastTimeouts uint32
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			st := rdb.PoolStats()
			metrics.RedisPoolOpen.Set(float64(st.TotalConns))
			metrics.RedisPoolIdle.Set(float64(st.IdleConns))
			metrics.RedisPoolStale.Set(float64(st.StaleConns))

			// Timeouts 是累计值，只加增量
			if st.Timeouts > lastTimeouts {
				metrics.RedisPoolTimeouts.Add(float64(st.Timeouts - lastTimeouts))
				lastTimeouts = st.Timeouts
			}
		}
	}()
}
