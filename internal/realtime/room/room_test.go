package room

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ividrine/tactics-api/pkg/xerr"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthz struct {
	allow map[string]bool // playerID|gsID
	err   error
	calls []string
}

func (f *fakeAuthz) IsPlayerInGameSession(_ context.Context, playerID, gsID string) (bool, error) {
	f.calls = append(f.calls, playerID+"|"+gsID)
	if f.err != nil {
		return false, f.err
	}
	return f.allow[playerID+"|"+gsID], nil
}

func stores(t *testing.T) map[string]Store {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]Store{
		"mem":   NewMemStore(),
		"redis": NewRedisStore(rdb),
	}
}

func TestValidateRoomName(t *testing.T) {
	valid := []string{"global", "lobby-42", "game-session-7", "game-session"}
	invalid := []string{"random", "", "Global", "lobby", "gamesession-1", " global"}
	for _, n := range valid {
		assert.True(t, ValidateRoomName(n), n)
	}
	for _, n := range invalid {
		assert.False(t, ValidateRoomName(n), n)
	}
}

func TestGameSessionID(t *testing.T) {
	id, ok := GameSessionID("game-session-abc-123")
	assert.True(t, ok)
	assert.Equal(t, "abc-123", id)

	for _, n := range []string{"game-session", "game-session-", "game-sessionX"} {
		_, ok := GameSessionID(n)
		assert.False(t, ok, n)
	}
}

func TestService_JoinLeaveIdempotent(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := NewService(st, &fakeAuthz{})

			for _, room := range []string{"global", "lobby-1"} {
				require.NoError(t, svc.Join(ctx, "p1", room, ""))
				require.NoError(t, svc.Join(ctx, "p1", room, "whatever"))
				ok, err := svc.IsMember(ctx, "p1", room)
				require.NoError(t, err)
				assert.True(t, ok)

				members, err := svc.Members(ctx, room)
				require.NoError(t, err)
				assert.Equal(t, []string{"p1"}, members)

				require.NoError(t, svc.Leave(ctx, "p1", room))
				require.NoError(t, svc.Leave(ctx, "p1", room))
				ok, err = svc.IsMember(ctx, "p1", room)
				require.NoError(t, err)
				assert.False(t, ok)
			}

			// 非成员 leave 也是 no-op
			require.NoError(t, svc.Leave(ctx, "ghost", "global"))
		})
	}
}

func TestService_JoinInvalidRoom(t *testing.T) {
	svc := NewService(NewMemStore(), &fakeAuthz{})
	err := svc.Join(context.Background(), "p1", "random", "")
	assert.ErrorIs(t, err, ErrInvalidRoom)
	assert.Equal(t, xerr.InvalidRoom, xerr.CodeOf(err))
}

func TestService_JoinGameSession(t *testing.T) {
	ctx := context.Background()
	authz := &fakeAuthz{allow: map[string]bool{"p1|gs-1": true}}
	svc := NewService(NewMemStore(), authz)

	require.NoError(t, svc.Join(ctx, "p1", "game-session-gs-1", ""))
	ok, _ := svc.IsMember(ctx, "p1", "game-session-gs-1")
	assert.True(t, ok)

	err := svc.Join(ctx, "p2", "game-session-gs-1", "")
	assert.Equal(t, xerr.Unauthorized, xerr.CodeOf(err))
	ok, _ = svc.IsMember(ctx, "p2", "game-session-gs-1")
	assert.False(t, ok)

	// id 解析不出来，不会去问 provider
	calls := len(authz.calls)
	err = svc.Join(ctx, "p1", "game-session", "")
	assert.Equal(t, xerr.Unauthorized, xerr.CodeOf(err))
	assert.Len(t, authz.calls, calls)

	assert.Equal(t, []string{"p1|gs-1", "p2|gs-1"}, authz.calls)
}

func TestService_JoinGameSessionProviderError(t *testing.T) {
	boom := errors.New("gamelift down")
	svc := NewService(NewMemStore(), &fakeAuthz{err: boom})

	err := svc.Join(context.Background(), "p1", "game-session-1", "")
	assert.Equal(t, xerr.Unauthorized, xerr.CodeOf(err))
	assert.ErrorIs(t, err, boom)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	st := NewRedisStore(rdb)
	require.NoError(t, st.Add(context.Background(), "lobby-9", "p1"))
	ok, err := mr.SIsMember("room:lobby-9", "p1")
	require.NoError(t, err)
	assert.True(t, ok)
}
