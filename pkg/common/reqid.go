package common

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ividrine/tactics-api/pkg/logger"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxKeyRequestID = logger.RequestIdKey

	// 上游传进来的 id 超过这个长度直接丢弃重新生成
	maxRequestIDLen = 64
)

// RequestID 复用上游合法的 id，否则生成新的
func RequestID(incoming string) string {
	if incoming == "" || len(incoming) > maxRequestIDLen {
		return uuid.NewString()
	}
	for i := 0; i < len(incoming); i++ {
		if b := incoming[i]; b < 0x21 || b > 0x7e {
			return uuid.NewString()
		}
	}
	return incoming
}

// WithRequestID 写进 context.Context，ws 连接劫持之后的日志靠它带 request_id
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, CtxKeyRequestID, rid)
}

func RequestIDFromGin(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
