package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ividrine/tactics-api/pkg/common"
	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/metrics"
	"github.com/ividrine/tactics-api/pkg/ratelimit"
	"github.com/ividrine/tactics-api/pkg/xerr"
	"go.uber.org/zap"
)

// RateLimit 按 ip+route 限流
func RateLimit(service string, store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		if !store.Allow(key) {
			// 限流属于可控拒绝，不打堆栈
			logger.Warn(c, "http rate limited",
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			metrics.RateLimitBlockTotal.WithLabelValues(service, route, "ip").Inc()
			common.Fail(c, http.StatusTooManyRequests, xerr.RateLimited, "请求过于频繁")
			c.Abort()
			return
		}
		c.Next()
	}
}
