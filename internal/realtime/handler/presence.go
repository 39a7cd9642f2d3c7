package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/ividrine/tactics-api/pkg/common"
	"github.com/ividrine/tactics-api/pkg/xerr"
)

type Locator interface {
	Locate(ctx context.Context, playerID string) (string, bool, error)
}

type Presence struct {
	loc Locator
}

func NewPresence(loc Locator) *Presence {
	return &Presence{loc: loc}
}

// Get GET /v1/presence/:playerId
func (p *Presence) Get(c *gin.Context) {
	if p.loc == nil {
		common.FailFromErr(c, xerr.New(xerr.RecordNotFound, "presence disabled"))
		return
	}
	playerID := c.Param("playerId")
	inst, online, err := p.loc.Locate(c.Request.Context(), playerID)
	if err != nil {
		common.FailFromErr(c, xerr.Wrap(err, xerr.ServerCommonError, ""))
		return
	}
	common.Success(c, gin.H{
		"playerId":   playerID,
		"online":     online,
		"instanceId": inst,
	})
}
