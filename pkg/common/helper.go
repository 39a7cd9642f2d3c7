package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/xerr"
	"go.uber.org/zap"
)

// http 返回格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FailFromErr 对外只回 code + message，底层 cause 只进日志。
// request_id 由 logger 从 gin.Context 里自动带上
func FailFromErr(c *gin.Context, err error) {
	code := xerr.CodeOf(err)
	msg := xerr.MapErrMsg(code)
	if ce, ok := xerr.As(err); ok && ce.Msg != "" {
		msg = ce.Msg
	}
	status := httpStatusOf(code)
	if status >= http.StatusInternalServerError {
		logger.Error(c, "http error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("biz_code", code),
			zap.Error(err),
		)
	} else {
		logger.Warn(c, "http rejected",
			zap.String("path", c.Request.URL.Path),
			zap.Int("biz_code", code),
			zap.Error(err),
		)
	}
	Fail(c, status, code, msg)
}

func httpStatusOf(code int) int {
	switch code {
	case xerr.BadRequest, xerr.InvalidRoom:
		return http.StatusBadRequest
	case xerr.Unauthorized:
		return http.StatusUnauthorized
	case xerr.NotMember:
		return http.StatusForbidden
	case xerr.RecordNotFound:
		return http.StatusNotFound
	case xerr.RateLimited:
		return http.StatusTooManyRequests
	case xerr.ProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
