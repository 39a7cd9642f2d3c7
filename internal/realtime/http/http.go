package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ividrine/tactics-api/internal/realtime/auth"
	"github.com/ividrine/tactics-api/internal/realtime/handler"
	"github.com/ividrine/tactics-api/internal/realtime/matchmaking"
	"github.com/ividrine/tactics-api/internal/realtime/webhook"
	"github.com/ividrine/tactics-api/pkg/middleware"
	"github.com/ividrine/tactics-api/pkg/ratelimit"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Deps struct {
	Service     string
	WSPath      string
	WS          http.HandlerFunc
	Auth        *auth.Authenticator
	Matchmaking matchmaking.Provider // nil 时撮合接口返回 503
	Webhook     *webhook.Handler
	Presence    handler.Locator // nil 时 presence 接口返回 404
	RateLimit   *ratelimit.Store
	Connections func() int
	Metrics     bool
}

func NewEngine(d Deps) *gin.Engine {
	r := gin.New()
	if d.Metrics {
		p := ginprom.NewPrometheus("tactics")
		p.Use(r)
	}
	r.Use(
		otelgin.Middleware(d.Service),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
	)

	r.GET("/healthz", func(c *gin.Context) {
		n := 0
		if d.Connections != nil {
			n = d.Connections()
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": n})
	})
	// ws 升级不走限流，连接数由 ws 层自己控制
	r.GET(d.WSPath, gin.WrapF(d.WS))

	v1 := r.Group("/v1")
	if d.RateLimit != nil {
		v1.Use(middleware.RateLimit(d.Service, d.RateLimit))
	}
	if d.Webhook != nil {
		v1.POST("/sns/matchmaking", d.Webhook.Matchmaking)
	}

	authed := v1.Group("", auth.RequireAccess(d.Auth))
	mh := handler.NewMatch(d.Matchmaking)
	authed.POST("/match/start", mh.Start)
	authed.POST("/match/stop", mh.Stop)
	authed.POST("/match/accept", mh.Accept)
	authed.GET("/presence/:playerId", handler.NewPresence(d.Presence).Get)
	return r
}

// NewServer WriteTimeout 必须为 0：ws 连接被劫持后仍受 http.Server 超时影响
func NewServer(addr string, d Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewEngine(d),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
