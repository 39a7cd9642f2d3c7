package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/ividrine/tactics-api/pkg/common"
)

// ReqId gin.Context 和 Request.Context 都放一份
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := common.RequestID(c.GetHeader(common.HeaderRequestID))
		c.Set(common.CtxKeyRequestID, rid)
		c.Header(common.HeaderRequestID, rid)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}
