package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/google/uuid"
	"github.com/ividrine/tactics-api/internal/realtime/auth"
	"github.com/ividrine/tactics-api/internal/realtime/config"
	"github.com/ividrine/tactics-api/internal/realtime/gateway"
	rhttp "github.com/ividrine/tactics-api/internal/realtime/http"
	"github.com/ividrine/tactics-api/internal/realtime/matchmaking"
	"github.com/ividrine/tactics-api/internal/realtime/presence"
	"github.com/ividrine/tactics-api/internal/realtime/room"
	"github.com/ividrine/tactics-api/internal/realtime/webhook"
	"github.com/ividrine/tactics-api/internal/realtime/ws"
	vipConfig "github.com/ividrine/tactics-api/pkg/config"
	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/ratelimit"
	"github.com/ividrine/tactics-api/pkg/register"
	"github.com/ividrine/tactics-api/pkg/register/etcd"
	"github.com/ividrine/tactics-api/pkg/safe"
	"github.com/ividrine/tactics-api/pkg/trace"
	"github.com/ividrine/tactics-api/pkg/xredis"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type App struct {
	cfg config.GatewayConfig
	v   *viper.Viper

	ctx    context.Context
	cancel context.CancelFunc

	rdb       *redis.Client
	broker    gateway.Broker
	bridge    *gateway.Bridge
	wsServer  *ws.Server
	marker    *presence.Marker
	provider  matchmaking.Provider
	etcdCli   *clientv3.Client
	registrar *etcd.EtcdRegister
	instance  *register.Instance

	httpSrv       *http.Server
	pprofSrv      *http.Server
	traceShutdown func(context.Context) error
}

// New 只加载配置和日志，连接外部依赖放到 Start
func New(configName string) (*App, error) {
	if configName == "" {
		configName = config.ServiceName
	}
	var cfg config.GatewayConfig
	v, err := vipConfig.Load(configName, &cfg, config.Defaults())
	if err != nil {
		return nil, err
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	logger.InitWithFile(cfg.Name, cfg.Log.Level, cfg.Log.File)

	// 只有日志级别允许热更新
	vipConfig.Watch(v, configName, func(v *viper.Viper) {
		logger.SetLevel(v.GetString("log.level"))
	})
	return &App{cfg: cfg, v: v}, nil
}

func (app *App) Config() config.GatewayConfig { return app.cfg }

// Start 按依赖顺序启动，任一步失败都返回错误；返回的 cleanUp 逆序关闭
func (app *App) Start(ctx context.Context) (func(), error) {
	app.ctx, app.cancel = context.WithCancel(ctx)
	cleanUp := app.shutdown

	if err := app.startTrace(); err != nil {
		return cleanUp, err
	}
	if err := app.startRedis(); err != nil {
		return cleanUp, err
	}
	a, err := auth.New(app.cfg.JWT)
	if err != nil {
		return cleanUp, err
	}
	if err := app.startMatchmaking(); err != nil {
		return cleanUp, err
	}
	rooms := app.newRoomService()

	app.broker, err = gateway.NewBroker(app.cfg.Broker, app.redisClient())
	if err != nil {
		return cleanUp, fmt.Errorf("init broker: %w", err)
	}

	reg := ws.NewRegistry()
	hub := ws.NewHub(reg, rooms)
	app.bridge = gateway.NewBridge(app.broker, hub, app.cfg.Broker.MatchmakingChannel, app.cfg.Broker.ChatPrefix)
	if err := app.bridge.Start(app.ctx); err != nil {
		return cleanUp, fmt.Errorf("start bridge: %w", err)
	}

	chatLimiter := ratelimit.NewStore(rate.Limit(app.cfg.WS.ChatRate), app.cfg.WS.ChatBurst, 10*time.Minute)
	chatLimiter.StartJanitor(app.ctx, time.Minute)

	opts := ws.Options{
		Auth:         a,
		Rooms:        rooms,
		Chat:         app.bridge,
		Limiter:      chatLimiter,
		SendBuf:      app.cfg.WS.SendBuf,
		ReadLimit:    app.cfg.WS.ReadLimit,
		PongWait:     app.cfg.WS.PongWait,
		PingPeriod:   app.cfg.WS.PingPeriod,
		WriteWait:    app.cfg.WS.WriteWait,
		AllowOrigins: app.cfg.WS.AllowOrigins,
	}
	if app.rdb != nil {
		app.marker = presence.NewMarker(app.rdb, app.cfg.Presence.KeyPrefix, app.cfg.InstanceID, app.cfg.Presence.TTL)
		app.marker.StartRefresher(app.ctx, app.cfg.Presence.Refresh, reg)
		opts.Presence = app.marker
	}
	app.wsServer = ws.NewServer(reg, opts)

	httpLimiter := ratelimit.NewStore(rate.Limit(app.cfg.HTTP.RateLimit), app.cfg.HTTP.RateBurst, 10*time.Minute)
	httpLimiter.StartJanitor(app.ctx, time.Minute)
	deps := rhttp.Deps{
		Service:     app.cfg.Name,
		WSPath:      app.cfg.WS.Path,
		WS:          app.wsServer.ServeWS,
		Auth:        a,
		Matchmaking: app.provider,
		Webhook:     webhook.New(app.bridge, app.cfg.Webhook, nil),
		RateLimit:   httpLimiter,
		Connections: reg.Len,
		Metrics:     true,
	}
	if app.marker != nil {
		deps.Presence = app.marker
	}
	app.httpSrv = rhttp.NewServer(app.cfg.HTTP.Addr, deps)

	if err := app.startEtcd(); err != nil {
		return cleanUp, err
	}
	app.startPprof()

	logger.Info(app.ctx, "realtime gateway started",
		zap.String("instance_id", app.cfg.InstanceID),
		zap.String("addr", app.cfg.HTTP.Addr),
		zap.String("broker", app.cfg.Broker.Driver),
		zap.Bool("redis", app.rdb != nil),
		zap.Bool("matchmaking", app.provider != nil),
	)
	return cleanUp, nil
}

// Run 阻塞直到 http server 退出
func (app *App) Run() error {
	if err := app.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (app *App) startTrace() error {
	shutdown, err := trace.InitTrace(app.ctx, app.cfg.Name, app.cfg.Trace.Host)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	app.traceShutdown = shutdown
	return nil
}

// startRedis redis.addr 为空时单机运行：成员表放内存，没有 presence
func (app *App) startRedis() error {
	if app.cfg.Redis.Addr == "" {
		logger.Warn(app.ctx, "redis disabled, running single-node")
		return nil
	}
	rdb, err := xredis.NewRedis(app.ctx, &app.cfg.Redis)
	if err != nil {
		return err
	}
	xredis.ObserveStats(app.ctx, rdb)
	app.rdb = rdb
	return nil
}

func (app *App) redisClient() redis.UniversalClient {
	if app.rdb == nil {
		return nil
	}
	return app.rdb
}

// startMatchmaking 没配 configuration 时不接 GameLift，game-session 房间一律拒绝
func (app *App) startMatchmaking() error {
	mc := app.cfg.Matchmaking
	if mc.Configuration == "" {
		logger.Warn(app.ctx, "matchmaking disabled, game-session rooms will be rejected")
		return nil
	}
	client, err := matchmaking.NewGameLiftClient(app.ctx, mc.Region)
	if err != nil {
		return fmt.Errorf("init gamelift: %w", err)
	}
	cb := ratelimit.NewManager("gamelift", mc.Breaker, nil)
	app.provider = matchmaking.NewGuard(matchmaking.NewGameLift(client, mc.Configuration), cb, mc.Timeout, mc.CacheTTL)
	return nil
}

func (app *App) newRoomService() *room.Service {
	var store room.Store = room.NewMemStore()
	if app.rdb != nil {
		store = room.NewRedisStore(app.rdb)
	}
	if app.provider == nil {
		return room.NewService(store, nil)
	}
	return room.NewService(store, app.provider)
}

func (app *App) startEtcd() error {
	if !app.cfg.Etcd.Enabled {
		return nil
	}
	cli, err := etcd.NewClient(&app.cfg.Etcd.Config)
	if err != nil {
		return fmt.Errorf("connect etcd: %w", err)
	}
	app.etcdCli = cli
	app.registrar = etcd.NewEtcdRegister(cli, app.cfg.Etcd.BasePath, app.cfg.Etcd.TTL)
	ins := &register.Instance{
		ID:   app.cfg.InstanceID,
		Name: app.cfg.Name,
		Addr: app.cfg.HTTP.Addr,
		MetaData: map[string]string{
			"broker": app.cfg.Broker.Driver,
			"ws":     app.cfg.WS.Path,
		},
	}
	regCtx, cancel := context.WithTimeout(app.ctx, 5*time.Second)
	defer cancel()
	if err := app.registrar.Register(regCtx, ins); err != nil {
		return fmt.Errorf("etcd register: %w", err)
	}
	app.instance = ins
	return nil
}

func (app *App) startPprof() {
	if app.cfg.HTTP.PprofAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	app.pprofSrv = &http.Server{
		Addr:              app.cfg.HTTP.PprofAddr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	safe.Go("pprof", func() {
		logger.Info(app.ctx, "pprof listening", zap.String("addr", app.pprofSrv.Addr))
		if err := app.pprofSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn(app.ctx, "pprof listen error", zap.Error(err))
		}
	})
}

// shutdown 先断 broker 不再收消息，再关 ws，最后关外部连接
func (app *App) shutdown() {
	timeout := app.cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if app.bridge != nil {
		app.bridge.Stop()
	}
	if app.broker != nil {
		if err := app.broker.Close(); err != nil {
			logger.Warn(ctx, "broker close", zap.Error(err))
		}
	}
	if app.wsServer != nil {
		if err := app.wsServer.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "ws shutdown", zap.Error(err))
		}
	}
	if app.httpSrv != nil {
		if err := app.httpSrv.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "http shutdown", zap.Error(err))
		}
	}
	if app.pprofSrv != nil {
		_ = app.pprofSrv.Shutdown(ctx)
	}
	if app.registrar != nil && app.instance != nil {
		if err := app.registrar.UnRegister(ctx, app.instance); err != nil {
			logger.Warn(ctx, "etcd unregister", zap.Error(err))
		}
	}
	if app.etcdCli != nil {
		_ = app.etcdCli.Close()
	}
	if app.cancel != nil {
		app.cancel()
	}
	if app.rdb != nil {
		_ = app.rdb.Close()
	}
	if app.traceShutdown != nil {
		_ = app.traceShutdown(ctx)
	}
	logger.Info(ctx, "realtime gateway stopped")
	logger.Sync()
}
