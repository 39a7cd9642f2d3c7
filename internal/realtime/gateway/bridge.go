package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/ividrine/tactics-api/internal/realtime/match"
	"github.com/ividrine/tactics-api/internal/realtime/ws"
	"github.com/ividrine/tactics-api/internal/realtime/wsmetrics"
	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/safe"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

// Broadcaster 本地投递（ws.Hub）
type Broadcaster interface {
	BroadcastToRoom(ctx context.Context, room string, v interface{}) error
	SendToIdentity(ctx context.Context, identity string, v interface{}) bool
}

// Bridge broker <-> 本地连接。订阅一个撮合频道和一个 chat 通配；
// 本地 chat 也走 broker 绕一圈，保证跨实例和同实例行为一致
type Bridge struct {
	broker       Broker
	out          Broadcaster
	matchChannel string
	chatPrefix   string

	cancel context.CancelFunc
	group  safe.Group
}

func NewBridge(broker Broker, out Broadcaster, matchChannel, chatPrefix string) *Bridge {
	return &Bridge{
		broker:       broker,
		out:          out,
		matchChannel: matchChannel,
		chatPrefix:   chatPrefix,
	}
}

func (b *Bridge) ChatChannel(room string) string { return b.chatPrefix + ":" + room }

func (b *Bridge) chatPattern() string { return b.chatPrefix + ":*" }

// Start 订阅失败直接返回错误，由调用方决定启动失败
func (b *Bridge) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	ch, err := b.broker.Subscribe(ctx, Subscription{
		Channels: []string{b.matchChannel},
		Patterns: []string{b.chatPattern()},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("bridge subscribe: %w", err)
	}
	b.cancel = cancel
	logger.Info(ctx, "broker bridge started",
		zap.String("match_channel", b.matchChannel),
		zap.String("chat_pattern", b.chatPattern()),
	)

	b.group.GoCtx(ctx, "broker-bridge", func(ctx context.Context) {
		for m := range ch {
			b.dispatch(ctx, m)
		}
		logger.Info(ctx, "broker bridge stopped")
	})
	return nil
}

// Stop 取消订阅并等消费协程退出
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.group.Wait()
}

func (b *Bridge) PublishChat(ctx context.Context, room string, msg ws.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.broker.Publish(ctx, b.ChatChannel(room), payload); err != nil {
		wsmetrics.BrokerErrorsTotal.WithLabelValues("publish").Inc()
		return err
	}
	wsmetrics.BrokerMsgsTotal.WithLabelValues("out", "chat").Inc()
	return nil
}

// PublishMatchEvent webhook 收到的原始事件，原样转发
func (b *Bridge) PublishMatchEvent(ctx context.Context, raw []byte) error {
	if err := b.broker.Publish(ctx, b.matchChannel, raw); err != nil {
		wsmetrics.BrokerErrorsTotal.WithLabelValues("publish").Inc()
		return err
	}
	wsmetrics.BrokerMsgsTotal.WithLabelValues("out", "matchmaking").Inc()
	return nil
}

func (b *Bridge) dispatch(ctx context.Context, m Message) {
	if m.Channel == b.matchChannel && m.Pattern == "" {
		wsmetrics.BrokerMsgsTotal.WithLabelValues("in", "matchmaking").Inc()
		b.onMatchEvent(ctx, m.Payload)
		return
	}
	if room, ok := strings.CutPrefix(m.Channel, b.chatPrefix+":"); ok && room != "" {
		wsmetrics.BrokerMsgsTotal.WithLabelValues("in", "chat").Inc()
		b.onChat(ctx, room, m.Payload)
	}
}

func (b *Bridge) onMatchEvent(ctx context.Context, raw []byte) {
	ev, err := match.Decode(raw)
	if err != nil {
		wsmetrics.BrokerErrorsTotal.WithLabelValues("decode_match").Inc()
		logger.Warn(ctx, "drop undecodable match event", zap.Error(err))
		return
	}
	if !ev.Detail.Type.Known() {
		logger.Warn(ctx, "unknown match event type", zap.String("type", string(ev.Detail.Type)))
	}

	for _, d := range match.Route(ev.Detail) {
		env := ws.Envelope{Type: string(d.Type), Payload: d.Payload}
		result := "sent"
		if !b.out.SendToIdentity(ctx, d.PlayerID, env) {
			result = "offline"
		}
		wsmetrics.MatchDeliveriesTotal.WithLabelValues(string(d.Type), result).Inc()
	}
	logger.Debug(ctx, "match event routed",
		zap.String("type", string(ev.Detail.Type)),
		zap.String("match_id", ev.Detail.MatchID),
	)
}

func (b *Bridge) onChat(ctx context.Context, room string, raw []byte) {
	var msg ws.ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		wsmetrics.BrokerErrorsTotal.WithLabelValues("decode_chat").Inc()
		logger.Warn(ctx, "drop undecodable chat message", zap.String("room", room), zap.Error(err))
		return
	}
	if err := b.out.BroadcastToRoom(ctx, room, ws.ChatEnvelope(msg)); err != nil {
		logger.Error(ctx, "broadcast chat failed", zap.String("room", room), zap.Error(err))
	}
}
