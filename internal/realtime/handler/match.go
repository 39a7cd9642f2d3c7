package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/ividrine/tactics-api/internal/realtime/auth"
	"github.com/ividrine/tactics-api/internal/realtime/matchmaking"
	"github.com/ividrine/tactics-api/pkg/common"
	"github.com/ividrine/tactics-api/pkg/xerr"
)

type Match struct {
	provider matchmaking.Provider
}

func NewMatch(p matchmaking.Provider) *Match {
	return &Match{provider: p}
}

type stopReq struct {
	TicketID string `json:"ticketId" binding:"required"`
}

type acceptReq struct {
	TicketID string `json:"ticketId" binding:"required"`
	Accept   *bool  `json:"accept" binding:"required"`
}

// Start POST /v1/match/start，body 可以为空
func (m *Match) Start(c *gin.Context) {
	id, ok := m.identity(c)
	if !ok {
		return
	}
	var req matchmaking.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.FailFromErr(c, xerr.Wrap(err, xerr.BadRequest, ""))
		return
	}
	ticket, err := m.provider.StartMatchmaking(c.Request.Context(), id.PlayerID, req)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, ticket)
}

func (m *Match) Stop(c *gin.Context) {
	id, ok := m.identity(c)
	if !ok {
		return
	}
	var req stopReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.Wrap(err, xerr.BadRequest, ""))
		return
	}
	if err := m.provider.StopMatchmaking(c.Request.Context(), id.PlayerID, req.TicketID); err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, nil)
}

func (m *Match) Accept(c *gin.Context) {
	id, ok := m.identity(c)
	if !ok {
		return
	}
	var req acceptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailFromErr(c, xerr.Wrap(err, xerr.BadRequest, ""))
		return
	}
	if err := m.provider.AcceptMatch(c.Request.Context(), id.PlayerID, req.TicketID, *req.Accept); err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, gin.H{"ticketId": req.TicketID, "accepted": *req.Accept})
}

func (m *Match) identity(c *gin.Context) (auth.Identity, bool) {
	if m.provider == nil {
		common.FailFromErr(c, xerr.NewErrCode(xerr.ProviderUnavailable))
		return auth.Identity{}, false
	}
	id, ok := auth.IdentityFrom(c)
	if !ok {
		common.FailFromErr(c, xerr.NewErrCode(xerr.Unauthorized))
		return auth.Identity{}, false
	}
	return id, true
}
