package matchmaking

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/gamelift"
	"github.com/aws/aws-sdk-go-v2/service/gamelift/types"
	"github.com/ividrine/tactics-api/pkg/xerr"
)

// API gamelift.Client 用到的子集，测试里替换成 fake
type API interface {
	DescribePlayerSessions(ctx context.Context, in *gamelift.DescribePlayerSessionsInput, optFns ...func(*gamelift.Options)) (*gamelift.DescribePlayerSessionsOutput, error)
	StartMatchmaking(ctx context.Context, in *gamelift.StartMatchmakingInput, optFns ...func(*gamelift.Options)) (*gamelift.StartMatchmakingOutput, error)
	StopMatchmaking(ctx context.Context, in *gamelift.StopMatchmakingInput, optFns ...func(*gamelift.Options)) (*gamelift.StopMatchmakingOutput, error)
	AcceptMatch(ctx context.Context, in *gamelift.AcceptMatchInput, optFns ...func(*gamelift.Options)) (*gamelift.AcceptMatchOutput, error)
}

type GameLift struct {
	api           API
	configuration string
}

// NewGameLiftClient 凭证走默认链（env / shared config / IRSA）
func NewGameLiftClient(ctx context.Context, region string) (*gamelift.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return gamelift.NewFromConfig(cfg), nil
}

func NewGameLift(api API, configuration string) *GameLift {
	return &GameLift{api: api, configuration: configuration}
}

// IsPlayerInGameSession 按 game session 列出 ACTIVE 的 player session，找 playerId
func (g *GameLift) IsPlayerInGameSession(ctx context.Context, playerID, gameSessionID string) (bool, error) {
	in := &gamelift.DescribePlayerSessionsInput{
		GameSessionId:             aws.String(gameSessionID),
		PlayerSessionStatusFilter: aws.String(string(types.PlayerSessionStatusActive)),
	}
	for {
		out, err := g.api.DescribePlayerSessions(ctx, in)
		if err != nil {
			return false, mapErr(err)
		}
		for _, ps := range out.PlayerSessions {
			if aws.ToString(ps.PlayerId) == playerID && ps.Status == types.PlayerSessionStatusActive {
				return true, nil
			}
		}
		if aws.ToString(out.NextToken) == "" {
			return false, nil
		}
		in.NextToken = out.NextToken
	}
}

func (g *GameLift) StartMatchmaking(ctx context.Context, playerID string, req StartRequest) (*Ticket, error) {
	attrs := make(map[string]types.AttributeValue, len(req.Attributes))
	for k, v := range req.Attributes {
		attrs[k] = types.AttributeValue{S: v.S, N: v.N, SL: v.SL, SDM: v.SDM}
	}
	latencies := req.Latencies
	if latencies == nil {
		latencies = map[string]int32{}
	}
	out, err := g.api.StartMatchmaking(ctx, &gamelift.StartMatchmakingInput{
		ConfigurationName: aws.String(g.configuration),
		Players: []types.Player{{
			PlayerId:         aws.String(playerID),
			PlayerAttributes: attrs,
			LatencyInMs:      latencies,
		}},
	})
	if err != nil {
		return nil, mapErr(err)
	}
	t := &Ticket{}
	if mt := out.MatchmakingTicket; mt != nil {
		t.TicketID = aws.ToString(mt.TicketId)
		t.Status = string(mt.Status)
		t.EstimatedWaitTime = mt.EstimatedWaitTime
	}
	return t, nil
}

func (g *GameLift) StopMatchmaking(ctx context.Context, _ string, ticketID string) error {
	_, err := g.api.StopMatchmaking(ctx, &gamelift.StopMatchmakingInput{TicketId: aws.String(ticketID)})
	return mapErr(err)
}

func (g *GameLift) AcceptMatch(ctx context.Context, playerID, ticketID string, accept bool) error {
	at := types.AcceptanceTypeReject
	if accept {
		at = types.AcceptanceTypeAccept
	}
	_, err := g.api.AcceptMatch(ctx, &gamelift.AcceptMatchInput{
		TicketId:       aws.String(ticketID),
		PlayerIds:      []string{playerID},
		AcceptanceType: at,
	})
	return mapErr(err)
}

// mapErr 调用方的问题映射成 4xx，其余保留原错误算下游故障
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var (
		invalid  *types.InvalidRequestException
		notFound *types.NotFoundException
		unauth   *types.UnauthorizedException
	)
	switch {
	case errors.As(err, &invalid):
		return xerr.Wrap(err, xerr.BadRequest, invalid.ErrorMessage())
	case errors.As(err, &notFound):
		return xerr.Wrap(err, xerr.RecordNotFound, notFound.ErrorMessage())
	case errors.As(err, &unauth):
		return xerr.Wrap(err, xerr.Unauthorized, "")
	default:
		return fmt.Errorf("gamelift: %w", err)
	}
}
