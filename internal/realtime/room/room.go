package room

import (
	"context"
	"fmt"
	"strings"

	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/xerr"
	"go.uber.org/zap"
)

const (
	Global            = "global"
	LobbyPrefix       = "lobby-"
	GameSessionPrefix = "game-session"
)

var (
	ErrInvalidRoom    = xerr.New(xerr.InvalidRoom, "Invalid room")
	ErrNotParticipant = xerr.New(xerr.Unauthorized, "Unauthorized")
)

// Store 每个房间一个成员集合，所有操作幂等
type Store interface {
	Add(ctx context.Context, room, playerID string) error
	Remove(ctx context.Context, room, playerID string) error
	IsMember(ctx context.Context, room, playerID string) (bool, error)
	Members(ctx context.Context, room string) ([]string, error)
}

// SessionAuthorizer 判断玩家是否是某个 game session 的活跃参与者
type SessionAuthorizer interface {
	IsPlayerInGameSession(ctx context.Context, playerID, gameSessionID string) (bool, error)
}

type Service struct {
	store Store
	authz SessionAuthorizer
}

func NewService(store Store, authz SessionAuthorizer) *Service {
	return &Service{store: store, authz: authz}
}

// ValidateRoomName global / lobby-* / game-session*
func ValidateRoomName(name string) bool {
	return name == Global ||
		strings.HasPrefix(name, LobbyPrefix) ||
		strings.HasPrefix(name, GameSessionPrefix)
}

// GameSessionID game-session-<id> 里的 <id>，解析不出返回 false
func GameSessionID(name string) (string, bool) {
	id, ok := strings.CutPrefix(name, GameSessionPrefix+"-")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Join password 目前不校验
func (s *Service) Join(ctx context.Context, playerID, room, password string) error {
	if !ValidateRoomName(room) {
		return ErrInvalidRoom
	}
	if strings.HasPrefix(room, GameSessionPrefix) {
		if err := s.authorizeGameSession(ctx, playerID, room); err != nil {
			return err
		}
	}
	if err := s.store.Add(ctx, room, playerID); err != nil {
		return fmt.Errorf("join %s: %w", room, err)
	}
	return nil
}

func (s *Service) authorizeGameSession(ctx context.Context, playerID, room string) error {
	gsID, ok := GameSessionID(room)
	if !ok || s.authz == nil {
		return ErrNotParticipant
	}
	ok, err := s.authz.IsPlayerInGameSession(ctx, playerID, gsID)
	if err != nil {
		// 查不到就当无权限，不放行
		logger.Warn(ctx, "game session authorization failed",
			zap.String("player_id", playerID),
			zap.String("game_session_id", gsID),
			zap.Error(err),
		)
		return xerr.Wrap(err, xerr.Unauthorized, "Unauthorized")
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}

func (s *Service) Leave(ctx context.Context, playerID, room string) error {
	if err := s.store.Remove(ctx, room, playerID); err != nil {
		return fmt.Errorf("leave %s: %w", room, err)
	}
	return nil
}

func (s *Service) IsMember(ctx context.Context, playerID, room string) (bool, error) {
	return s.store.IsMember(ctx, room, playerID)
}

func (s *Service) Members(ctx context.Context, room string) ([]string, error) {
	return s.store.Members(ctx, room)
}
