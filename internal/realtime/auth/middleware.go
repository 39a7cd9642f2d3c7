package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/ividrine/tactics-api/pkg/common"
)

const ctxKeyIdentity = "identity"

// RequireAccess 校验 Bearer access token，身份放进 gin.Context
func RequireAccess(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := a.Authenticate(c.Request)
		if err != nil {
			common.FailFromErr(c, err)
			c.Abort()
			return
		}
		c.Set(ctxKeyIdentity, id)
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
