package ws

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ividrine/tactics-api/internal/realtime/auth"
	"github.com/ividrine/tactics-api/internal/realtime/wsmetrics"
	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/safe"
	"go.uber.org/zap"
)

type Authenticator interface {
	Authenticate(r *http.Request) (auth.Identity, error)
}

type RoomService interface {
	Join(ctx context.Context, playerID, room, password string) error
	Leave(ctx context.Context, playerID, room string) error
	IsMember(ctx context.Context, playerID, room string) (bool, error)
}

// ChatPublisher 本地 chat 一律发到 broker，同实例的成员也从 broker 收
type ChatPublisher interface {
	PublishChat(ctx context.Context, room string, msg ChatMessage) error
}

// Presence 可选，没有 redis 时为 nil
type Presence interface {
	Mark(ctx context.Context, playerID string) error
	Clear(ctx context.Context, playerID string) error
}

type Limiter interface {
	Allow(key string) bool
}

type Options struct {
	Auth     Authenticator
	Rooms    RoomService
	Chat     ChatPublisher
	Presence Presence
	Limiter  Limiter

	SendBuf      int
	ReadLimit    int64
	PongWait     time.Duration
	PingPeriod   time.Duration
	PingJitter   time.Duration
	WriteWait    time.Duration
	AllowOrigins []string
}

type Server struct {
	reg      *Registry
	auth     Authenticator
	rooms    RoomService
	chat     ChatPublisher
	presence Presence
	limiter  Limiter

	Upgrader   websocket.Upgrader
	SendBuf    int
	ReadLimit  int64
	PongWait   time.Duration
	PingPeriod time.Duration
	PingJitter time.Duration
	WriteWait  time.Duration

	draining atomic.Bool
	conns    sync.WaitGroup
	mu       sync.Mutex
	live     map[*Conn]struct{} // 含被顶掉但还没断开的旧连接
}

func NewServer(reg *Registry, o Options) *Server {
	s := &Server{
		reg:        reg,
		auth:       o.Auth,
		rooms:      o.Rooms,
		chat:       o.Chat,
		presence:   o.Presence,
		limiter:    o.Limiter,
		SendBuf:    o.SendBuf,
		ReadLimit:  o.ReadLimit,
		PongWait:   o.PongWait,
		PingPeriod: o.PingPeriod,
		PingJitter: o.PingJitter,
		WriteWait:  o.WriteWait,
		live:       make(map[*Conn]struct{}, 1024),
	}
	if s.SendBuf <= 0 {
		s.SendBuf = 256
	}
	if s.ReadLimit <= 0 {
		s.ReadLimit = 4 << 10
	}
	if s.PongWait <= 0 {
		s.PongWait = 60 * time.Second
	}
	if s.PingPeriod <= 0 || s.PingPeriod >= s.PongWait {
		s.PingPeriod = s.PongWait * 9 / 10
	}
	if s.PingJitter <= 0 {
		s.PingJitter = 100 * time.Millisecond
	}
	if s.WriteWait <= 0 {
		s.WriteWait = 5 * time.Second
	}
	s.Upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(o.AllowOrigins),
	}
	return s
}

func checkOrigin(allow []string) func(r *http.Request) bool {
	if len(allow) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allow))
	for _, o := range allow {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// 非浏览器客户端（游戏客户端）不带 Origin
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS 升级后再判鉴权结果：失败发 1008 "Unauthorized" 关闭，不进注册表
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	id, authErr := s.auth.Authenticate(r)

	wsConn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写了 http 错误
		logger.Debug(r.Context(), "ws upgrade failed", zap.Error(err))
		return
	}

	if authErr != nil {
		wsmetrics.AuthFailTotal.Inc()
		logger.Info(r.Context(), "ws handshake rejected", zap.String("remote", r.RemoteAddr), zap.Error(authErr))
		_ = wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Unauthorized"),
			time.Now().Add(s.WriteWait))
		_ = wsConn.Close()
		return
	}

	c := newConn(id.PlayerID, wsConn, s.SendBuf)
	// 鉴权和握手期间可能已经开始 Shutdown；draining 检查、加入 live、conns.Add 必须在同一把锁里
	s.mu.Lock()
	if s.draining.Load() {
		s.mu.Unlock()
		_ = wsConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(s.WriteWait))
		_ = wsConn.Close()
		return
	}
	s.live[c] = struct{}{}
	s.conns.Add(1)
	s.mu.Unlock()

	// 升级后 request ctx 会被取消，保留里面的 request_id 即可
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	if prev := s.reg.Register(c); prev != nil {
		logger.Info(ctx, "player reconnected, previous connection replaced", zap.String("player_id", c.id))
	}
	if s.presence != nil {
		if err := s.presence.Mark(ctx, c.id); err != nil {
			logger.Warn(ctx, "presence mark failed", zap.String("player_id", c.id), zap.Error(err))
		}
	}
	wsmetrics.OnOpen()
	logger.Info(ctx, "player connected", zap.String("player_id", c.id), zap.String("remote", r.RemoteAddr))

	safe.GoCtx(ctx, "ws-write-"+c.id, func(ctx context.Context) { s.writePump(c) })
	safe.GoCtx(ctx, "ws-read-"+c.id, func(ctx context.Context) {
		defer s.conns.Done()
		defer cancel()
		s.readPump(ctx, c)
	})
}

func (s *Server) readPump(ctx context.Context, c *Conn) {
	defer s.cleanup(ctx, c)

	c.ws.SetReadLimit(s.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	c.ws.SetPongHandler(func(string) error {
		wsmetrics.PongRecvTotal.Inc()
		return c.ws.SetReadDeadline(time.Now().Add(s.PongWait))
	})

	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			var ne net.Error
			switch {
			case errors.As(err, &ce):
				c.Close(ce.Code, "client closed")
			case errors.As(err, &ne) && ne.Timeout():
				wsmetrics.PongTimeoutTotal.Inc()
				c.Close(websocket.CloseGoingAway, "pong timeout")
			default:
				// 服务端主动 Close 时这里也会走到，closeOnce 保证保留第一次的原因
				c.Close(websocket.CloseGoingAway, "read error")
				logger.Debug(ctx, "ws read error", zap.String("player_id", c.id), zap.Error(err))
			}
			return
		}
		s.handleFrame(ctx, c, b)
	}
}

func (s *Server) writePump(c *Conn) {
	jitter := time.Duration(rand.Int63n(int64(s.PingJitter)))
	ticker := time.NewTicker(s.PingPeriod + jitter)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case b := <-c.send:
			start := time.Now()
			_ = c.ws.SetWriteDeadline(start.Add(s.WriteWait))
			err := c.ws.WriteMessage(websocket.TextMessage, b)
			wsmetrics.ObserveWrite(len(b), time.Since(start), err)
			if err != nil {
				c.Close(websocket.CloseGoingAway, "write error")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.WriteWait)); err != nil {
				wsmetrics.PingErrorsTotal.Inc()
				c.Close(websocket.CloseGoingAway, "ping error")
				return
			}
			wsmetrics.PingSentTotal.Inc()
		case <-c.done:
			code, reason := c.closeStatus()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason),
				time.Now().Add(s.WriteWait))
			return
		}
	}
}

// cleanup 只删注册表和 presence，房间成员关系保留
func (s *Server) cleanup(ctx context.Context, c *Conn) {
	s.mu.Lock()
	delete(s.live, c)
	s.mu.Unlock()

	code, reason := c.closeStatus()
	if s.reg.Release(c.id, c) && s.presence != nil {
		if err := s.presence.Clear(ctx, c.id); err != nil {
			logger.Warn(ctx, "presence clear failed", zap.String("player_id", c.id), zap.Error(err))
		}
	}
	wsmetrics.OnClose(code, reason)
	logger.Info(ctx, "player disconnected",
		zap.String("player_id", c.id),
		zap.Int("code", code),
		zap.String("reason", reason),
		zap.Duration("alive", time.Since(c.createdAt)),
	)
}

func (s *Server) Registry() *Registry { return s.reg }

// Drain 之后新的升级请求直接 503，握手中的连接升级后发 1001 关闭
func (s *Server) Drain() {
	s.mu.Lock()
	s.draining.Store(true)
	s.mu.Unlock()
}

// Shutdown 拒绝新连接，给所有连接发 1001，等 readPump 收尾
func (s *Server) Shutdown(ctx context.Context) error {
	s.Drain()
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.live))
	for c := range s.live {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "server shutdown")
	}
	logger.Info(ctx, "closing websocket connections", zap.Int("count", len(conns)))

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
