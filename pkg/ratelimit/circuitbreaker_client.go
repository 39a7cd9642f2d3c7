package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ividrine/tactics-api/pkg/metrics"
	"github.com/ividrine/tactics-api/pkg/xerr"
	"github.com/sony/gobreaker/v2"
)

type Rule struct {
	// Half-Open 状态允许通过的探测请求数
	MaxRequests uint32 `mapstructure:"max_requests"`
	// Closed 状态计数窗口
	Interval time.Duration `mapstructure:"interval"`
	// >0 启用 rolling window
	BucketPeriod time.Duration `mapstructure:"bucket_period"`
	// Open 状态持续时间，到期进入 Half-Open
	Timeout time.Duration `mapstructure:"timeout"`

	// 触发熔断条件（两种之一即可）
	TripConsecutiveFailures uint32  `mapstructure:"trip_consecutive_failures"`
	TripFailureRate         float64 `mapstructure:"trip_failure_rate"`
	TripMinRequests         uint32  `mapstructure:"trip_min_requests"`
}

// Manager 按下游方法名懒创建熔断器
type Manager struct {
	service string

	mu sync.RWMutex
	m  map[string]*gobreaker.CircuitBreaker[struct{}]

	defaultRule Rule
	rules       map[string]Rule
}

func NewManager(service string, defaultRule Rule, perMethod map[string]Rule) *Manager {
	if defaultRule.MaxRequests == 0 {
		defaultRule.MaxRequests = 5
	}
	if defaultRule.Timeout <= 0 {
		defaultRule.Timeout = 3 * time.Second
	}
	if defaultRule.Interval <= 0 {
		defaultRule.Interval = 10 * time.Second
	}
	if defaultRule.TripConsecutiveFailures == 0 && defaultRule.TripFailureRate == 0 {
		defaultRule.TripConsecutiveFailures = 10
	}
	if defaultRule.TripMinRequests == 0 {
		defaultRule.TripMinRequests = 20
	}

	return &Manager{
		service:     service,
		m:           make(map[string]*gobreaker.CircuitBreaker[struct{}], 8),
		defaultRule: defaultRule,
		rules:       perMethod,
	}
}

func (m *Manager) Get(method string) *gobreaker.CircuitBreaker[struct{}] {
	m.mu.RLock()
	cb := m.m[method]
	m.mu.RUnlock()
	if cb != nil {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb = m.m[method]; cb != nil {
		return cb
	}

	rule, ok := m.rules[method]
	if !ok {
		rule = m.defaultRule
	}
	st := gobreaker.Settings{
		Name:         method,
		MaxRequests:  rule.MaxRequests,
		Interval:     rule.Interval,
		BucketPeriod: rule.BucketPeriod,
		Timeout:      rule.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if rule.TripConsecutiveFailures > 0 && c.ConsecutiveFailures >= rule.TripConsecutiveFailures {
				return true
			}
			if rule.TripFailureRate > 0 && c.Requests >= rule.TripMinRequests {
				return float64(c.TotalFailures)/float64(c.Requests) >= rule.TripFailureRate
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.CBState.WithLabelValues(m.service, name, from.String()).Set(0)
			metrics.CBState.WithLabelValues(m.service, name, to.String()).Set(1)
		},
		IsSuccessful: isSuccessfulForBreaker,
	}

	cb = gobreaker.NewCircuitBreaker[struct{}](st)
	m.m[method] = cb
	return cb
}

// Do 走熔断执行 fn；熔断打开时返回 ProviderUnavailable
func (m *Manager) Do(method string, fn func() error) error {
	_, err := m.Get(method).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CBRejectTotal.WithLabelValues(m.service, method, err.Error()).Inc()
		return xerr.Wrap(err, xerr.ProviderUnavailable, "")
	}
	return err
}

// 业务可预期的拒绝（鉴权失败、参数错误、调用方取消）不代表下游不健康
func isSuccessfulForBreaker(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch xerr.CodeOf(err) {
	case xerr.BadRequest, xerr.Unauthorized, xerr.NotMember, xerr.RecordNotFound, xerr.InvalidRoom:
		return true
	default:
		return false
	}
}
