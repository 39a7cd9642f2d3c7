package ws

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/ividrine/tactics-api/internal/realtime/wsmetrics"
	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/xerr"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

// handleFrame 解析失败、未知类型直接忽略，不回错误帧
func (s *Server) handleFrame(ctx context.Context, c *Conn, b []byte) {
	var msg ClientMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		wsmetrics.FramesInTotal.WithLabelValues("invalid").Inc()
		return
	}

	switch msg.Type {
	case TypeJoin:
		var p JoinPayload
		if !decodePayload(msg, &p) {
			return
		}
		s.onJoin(ctx, c, p)
	case TypeChat:
		var p ChatPayload
		if !decodePayload(msg, &p) {
			return
		}
		s.onChat(ctx, c, p)
	case TypeLeave:
		var p LeavePayload
		if !decodePayload(msg, &p) {
			return
		}
		s.onLeave(ctx, c, p)
	default:
		wsmetrics.FramesInTotal.WithLabelValues("unknown").Inc()
	}
}

func decodePayload(msg ClientMsg, out interface{}) bool {
	if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, out) != nil {
		wsmetrics.FramesInTotal.WithLabelValues("invalid").Inc()
		return false
	}
	wsmetrics.FramesInTotal.WithLabelValues(msg.Type).Inc()
	return true
}

func (s *Server) onJoin(ctx context.Context, c *Conn, p JoinPayload) {
	if err := s.rooms.Join(ctx, c.id, p.Room, p.Password); err != nil {
		s.replyError(ctx, c, err)
		return
	}
	logger.Info(ctx, "player joined room", zap.String("player_id", c.id), zap.String("room", p.Room))
}

func (s *Server) onChat(ctx context.Context, c *Conn, p ChatPayload) {
	if s.limiter != nil && !s.limiter.Allow(c.id) {
		s.replyError(ctx, c, xerr.NewErrCode(xerr.RateLimited))
		return
	}
	ok, err := s.rooms.IsMember(ctx, c.id, p.Room)
	if err != nil {
		s.replyError(ctx, c, err)
		return
	}
	if !ok {
		s.replyError(ctx, c, xerr.NewErrCode(xerr.NotMember))
		return
	}
	if err := s.chat.PublishChat(ctx, p.Room, ChatMessage{Message: p.Message, Sender: c.id}); err != nil {
		// broker 故障是进程级问题，不回给发送者
		logger.Error(ctx, "publish chat failed", zap.String("player_id", c.id), zap.String("room", p.Room), zap.Error(err))
	}
}

func (s *Server) onLeave(ctx context.Context, c *Conn, p LeavePayload) {
	if err := s.rooms.Leave(ctx, c.id, p.Room); err != nil {
		logger.Error(ctx, "leave room failed", zap.String("player_id", c.id), zap.String("room", p.Room), zap.Error(err))
		return
	}
	logger.Info(ctx, "player left room", zap.String("player_id", c.id), zap.String("room", p.Room))
}

// replyError 只发给当前连接，连接保持打开
func (s *Server) replyError(ctx context.Context, c *Conn, err error) {
	code := xerr.CodeOf(err)
	msg := xerr.MapErrMsg(code)
	if code >= xerr.ServerCommonError {
		logger.Error(ctx, "ws request failed", zap.String("player_id", c.id), zap.Error(err))
	} else {
		logger.Debug(ctx, "ws request rejected", zap.String("player_id", c.id), zap.Error(err))
	}
	wsmetrics.ErrorFramesTotal.WithLabelValues(msg).Inc()

	b, mErr := json.Marshal(NewErrorFrame(msg))
	if mErr != nil {
		return
	}
	if err := c.TrySend(b); err == ErrBackpressure {
		wsmetrics.DroppedTotal.WithLabelValues("backpressure").Inc()
		c.Close(websocket.CloseTryAgainLater, "slow consumer")
	}
}
