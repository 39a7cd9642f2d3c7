package matchmaking

import (
	"context"
	"sync"
	"time"

	"github.com/ividrine/tactics-api/pkg/ratelimit"
	"golang.org/x/sync/singleflight"
)

// Guard 给 Provider 加超时 + 熔断；成员查询做 singleflight 合并和短 TTL 缓存，
// 一局开始时同一 game session 的玩家会几乎同时 join
type Guard struct {
	next    Provider
	cb      *ratelimit.Manager
	timeout time.Duration

	sf       singleflight.Group
	cacheTTL time.Duration
	mu       sync.Mutex
	cache    map[string]cached
	now      func() time.Time
}

type cached struct {
	ok      bool
	expires time.Time
}

func NewGuard(next Provider, cb *ratelimit.Manager, timeout, cacheTTL time.Duration) *Guard {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Guard{
		next:     next,
		cb:       cb,
		timeout:  timeout,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cached, 256),
		now:      time.Now,
	}
}

func (g *Guard) IsPlayerInGameSession(ctx context.Context, playerID, gameSessionID string) (bool, error) {
	key := gameSessionID + "|" + playerID
	if ok, hit := g.lookup(key); hit {
		return ok, nil
	}
	v, err, _ := g.sf.Do(key, func() (interface{}, error) {
		var ok bool
		err := g.call(ctx, "DescribePlayerSessions", func(ctx context.Context) error {
			var err error
			ok, err = g.next.IsPlayerInGameSession(ctx, playerID, gameSessionID)
			return err
		})
		if err != nil {
			return false, err
		}
		g.store(key, ok)
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (g *Guard) StartMatchmaking(ctx context.Context, playerID string, req StartRequest) (*Ticket, error) {
	var t *Ticket
	err := g.call(ctx, "StartMatchmaking", func(ctx context.Context) error {
		var err error
		t, err = g.next.StartMatchmaking(ctx, playerID, req)
		return err
	})
	return t, err
}

func (g *Guard) StopMatchmaking(ctx context.Context, playerID, ticketID string) error {
	return g.call(ctx, "StopMatchmaking", func(ctx context.Context) error {
		return g.next.StopMatchmaking(ctx, playerID, ticketID)
	})
}

func (g *Guard) AcceptMatch(ctx context.Context, playerID, ticketID string, accept bool) error {
	return g.call(ctx, "AcceptMatch", func(ctx context.Context) error {
		return g.next.AcceptMatch(ctx, playerID, ticketID, accept)
	})
}

func (g *Guard) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if g.cb == nil {
		return fn(ctx)
	}
	return g.cb.Do(method, func() error { return fn(ctx) })
}

func (g *Guard) lookup(key string) (bool, bool) {
	if g.cacheTTL <= 0 {
		return false, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cache[key]
	if !ok {
		return false, false
	}
	if g.now().After(c.expires) {
		delete(g.cache, key)
		return false, false
	}
	return c.ok, true
}

func (g *Guard) store(key string, ok bool) {
	if g.cacheTTL <= 0 {
		return
	}
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	// 过期的顺手清掉，避免 map 无限增长
	if len(g.cache) >= 4096 {
		for k, c := range g.cache {
			if now.After(c.expires) {
				delete(g.cache, k)
			}
		}
	}
	g.cache[key] = cached{ok: ok, expires: now.Add(g.cacheTTL)}
}
