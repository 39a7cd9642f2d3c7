package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/ividrine/tactics-api/pkg/common"
	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/xerr"
	"go.uber.org/zap"
)

// Recover 已经写过响应（比如 ws 升级后被劫持）就只记日志
func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(c, "http panic",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			common.Fail(c, http.StatusInternalServerError, xerr.ServerCommonError, xerr.MapErrMsg(xerr.ServerCommonError))
			c.Abort()
		}()
		c.Next()
	}
}
