package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/safe"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 只删属于本实例的标记；玩家已经重连到别的实例时不能误删
var clearIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 只续期仍属于本实例的标记；已被 Clear 或被别的实例接管的 key 不能写回
var refreshIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Marker user:<playerId> -> 实例 id，带 TTL
type Marker struct {
	rdb        redis.UniversalClient
	prefix     string
	instanceID string
	ttl        time.Duration
}

func NewMarker(rdb redis.UniversalClient, prefix, instanceID string, ttl time.Duration) *Marker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Marker{rdb: rdb, prefix: prefix, instanceID: instanceID, ttl: ttl}
}

func (m *Marker) key(playerID string) string { return m.prefix + playerID }

func (m *Marker) Mark(ctx context.Context, playerID string) error {
	return m.rdb.Set(ctx, m.key(playerID), m.instanceID, m.ttl).Err()
}

func (m *Marker) Clear(ctx context.Context, playerID string) error {
	return clearIfOwner.Run(ctx, m.rdb, []string{m.key(playerID)}, m.instanceID).Err()
}

// Locate 返回持有该玩家连接的实例 id
func (m *Marker) Locate(ctx context.Context, playerID string) (string, bool, error) {
	v, err := m.rdb.Get(ctx, m.key(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Refresh 续期本实例上仍在线的玩家；只延长 TTL，不重建 key
func (m *Marker) Refresh(ctx context.Context, playerIDs []string) error {
	if len(playerIDs) == 0 {
		return nil
	}
	ttl := m.ttl.Milliseconds()
	_, err := m.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range playerIDs {
			refreshIfOwner.Eval(ctx, p, []string{m.key(id)}, m.instanceID, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("refresh presence: %w", err)
	}
	return nil
}

// IdentitySource 本实例在线玩家（ws.Registry）
type IdentitySource interface {
	Identities() []string
}

// StartRefresher 每 every 续期一次，ctx 结束退出
func (m *Marker) StartRefresher(ctx context.Context, every time.Duration, src IdentitySource) {
	if every <= 0 || every >= m.ttl {
		every = m.ttl / 3
	}
	safe.GoCtx(ctx, "presence-refresher", func(ctx context.Context) {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			ids := src.Identities()
			if err := m.Refresh(ctx, ids); err != nil {
				logger.Warn(ctx, "presence refresh failed", zap.Int("count", len(ids)), zap.Error(err))
			}
		}
	})
}
