package matchmaking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ividrine/tactics-api/pkg/ratelimit"
	"github.com/ividrine/tactics-api/pkg/xerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (p *countingProvider) IsPlayerInGameSession(ctx context.Context, playerID, _ string) (bool, error) {
	p.calls.Add(1)
	if p.release != nil {
		<-p.release
	}
	return playerID == "p1", p.err
}

func (p *countingProvider) StartMatchmaking(context.Context, string, StartRequest) (*Ticket, error) {
	p.calls.Add(1)
	return nil, p.err
}

func (p *countingProvider) StopMatchmaking(context.Context, string, string) error {
	p.calls.Add(1)
	return p.err
}

func (p *countingProvider) AcceptMatch(context.Context, string, string, bool) error {
	p.calls.Add(1)
	return p.err
}

func TestGuard_CollapsesConcurrentLookups(t *testing.T) {
	next := &countingProvider{release: make(chan struct{})}
	g := NewGuard(next, nil, time.Second, time.Minute)

	var wg sync.WaitGroup
	results := make([]bool, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := g.IsPlayerInGameSession(context.Background(), "p1", "gs-1")
			assert.NoError(t, err)
			results[i] = ok
		}(i)
	}
	// 等第一个请求进到下游再放行
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.Equal(t, int32(1), next.calls.Load())

	// 缓存命中
	ok, err := g.IsPlayerInGameSession(context.Background(), "p1", "gs-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestGuard_CacheExpires(t *testing.T) {
	next := &countingProvider{}
	g := NewGuard(next, nil, time.Second, time.Second)
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	_, _ = g.IsPlayerInGameSession(context.Background(), "p2", "gs-1")
	_, _ = g.IsPlayerInGameSession(context.Background(), "p2", "gs-1")
	assert.Equal(t, int32(1), next.calls.Load())

	now = now.Add(2 * time.Second)
	_, _ = g.IsPlayerInGameSession(context.Background(), "p2", "gs-1")
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestGuard_ErrorsAreNotCached(t *testing.T) {
	next := &countingProvider{err: errors.New("throttled")}
	g := NewGuard(next, nil, time.Second, time.Minute)

	_, err := g.IsPlayerInGameSession(context.Background(), "p1", "gs-1")
	assert.Error(t, err)
	_, err = g.IsPlayerInGameSession(context.Background(), "p1", "gs-1")
	assert.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestGuard_BreakerOpens(t *testing.T) {
	next := &countingProvider{err: errors.New("5xx")}
	cb := ratelimit.NewManager("matchmaking-test", ratelimit.Rule{TripConsecutiveFailures: 2, Timeout: time.Minute}, nil)
	g := NewGuard(next, cb, time.Second, 0)

	_ = g.StopMatchmaking(context.Background(), "p1", "t")
	_ = g.StopMatchmaking(context.Background(), "p1", "t")
	err := g.StopMatchmaking(context.Background(), "p1", "t")

	assert.Equal(t, xerr.ProviderUnavailable, xerr.CodeOf(err))
	assert.Equal(t, int32(2), next.calls.Load())
}
