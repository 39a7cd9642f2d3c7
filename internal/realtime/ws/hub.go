package ws

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/ividrine/tactics-api/internal/realtime/wsmetrics"
	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

// MemberLister 房间成员来源（room.Service）
type MemberLister interface {
	Members(ctx context.Context, room string) ([]string, error)
}

// Hub 按房间或身份投递；每个收件人都是非阻塞 TrySend，
// 慢客户端断开，不会卡住其它人
type Hub struct {
	reg     *Registry
	members MemberLister
}

func NewHub(reg *Registry, members MemberLister) *Hub {
	return &Hub{reg: reg, members: members}
}

// BroadcastToRoom 只编码一次；返回的错误只可能来自成员查询或编码
func (h *Hub) BroadcastToRoom(ctx context.Context, room string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	ids, err := h.members.Members(ctx, room)
	if err != nil {
		return fmt.Errorf("members of %s: %w", room, err)
	}
	for _, id := range ids {
		h.deliver(ctx, id, b)
	}
	return nil
}

// SendToIdentity 对方不在线返回 false
func (h *Hub) SendToIdentity(ctx context.Context, identity string, v interface{}) bool {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error(ctx, "encode outbound message failed", zap.String("player_id", identity), zap.Error(err))
		return false
	}
	return h.deliver(ctx, identity, b)
}

func (h *Hub) deliver(ctx context.Context, identity string, b []byte) bool {
	c, ok := h.reg.Lookup(identity)
	if !ok {
		wsmetrics.DroppedTotal.WithLabelValues("offline").Inc()
		return false
	}
	if err := c.TrySend(b); err != nil {
		if errors.Is(err, ErrBackpressure) {
			wsmetrics.DroppedTotal.WithLabelValues("backpressure").Inc()
			logger.Warn(ctx, "slow consumer disconnected", zap.String("player_id", identity))
			c.Close(websocket.CloseTryAgainLater, "slow consumer")
		} else {
			wsmetrics.DroppedTotal.WithLabelValues("closed").Inc()
		}
		return false
	}
	return true
}
