package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/ividrine/tactics-api/internal/realtime/auth"
	"github.com/ividrine/tactics-api/internal/realtime/config"
	"github.com/ividrine/tactics-api/internal/realtime/match"
	"github.com/ividrine/tactics-api/internal/realtime/room"
	"github.com/ividrine/tactics-api/internal/realtime/ws"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brokerCfg(driver string) config.BrokerConfig {
	return config.BrokerConfig{Driver: driver, MatchmakingChannel: "matchmaking", ChatPrefix: "chat", Buffer: 64}
}

type roomMsg struct {
	Room string
	V    interface{}
}

type directMsg struct {
	To string
	V  interface{}
}

type recorder struct {
	mu     sync.Mutex
	online map[string]bool
	rooms  []roomMsg
	direct []directMsg
}

func (r *recorder) BroadcastToRoom(_ context.Context, room string, v interface{}) error {
	r.mu.Lock()
	r.rooms = append(r.rooms, roomMsg{room, v})
	r.mu.Unlock()
	return nil
}

func (r *recorder) SendToIdentity(_ context.Context, id string, v interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online[id] {
		return false
	}
	r.direct = append(r.direct, directMsg{id, v})
	return true
}

func (r *recorder) snapshot() ([]roomMsg, []directMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]roomMsg(nil), r.rooms...), append([]directMsg(nil), r.direct...)
}

func startBridge(t *testing.T, b Broker, out Broadcaster) *Bridge {
	t.Helper()
	br := NewBridge(b, out, "matchmaking", "chat")
	require.NoError(t, br.Start(context.Background()))
	t.Cleanup(br.Stop)
	return br
}

func TestBridge_PublishChatFormat(t *testing.T) {
	mb := NewMemBroker(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	raw, err := mb.Subscribe(ctx, Subscription{Channels: []string{"chat:global"}})
	require.NoError(t, err)

	br := NewBridge(mb, &recorder{}, "matchmaking", "chat")
	require.NoError(t, br.PublishChat(ctx, "global", ws.ChatMessage{Message: "hi", Sender: "alice"}))

	m := recv(t, raw)
	assert.Equal(t, "chat:global", m.Channel)
	assert.JSONEq(t, `{"message":"hi","sender":"alice"}`, string(m.Payload))
}

func TestBridge_ChatDispatch(t *testing.T) {
	mb := NewMemBroker(16)
	rec := &recorder{}
	startBridge(t, mb, rec)

	require.NoError(t, mb.Publish(context.Background(), "chat:lobby-7", []byte(`{"message":"gg","sender":"bob"}`)))
	require.NoError(t, mb.Publish(context.Background(), "chat:lobby-7", []byte(`garbage`)))

	require.Eventually(t, func() bool {
		rooms, _ := rec.snapshot()
		return len(rooms) == 1
	}, time.Second, 5*time.Millisecond)
	rooms, _ := rec.snapshot()
	assert.Equal(t, roomMsg{
		Room: "lobby-7",
		V:    ws.Envelope{Type: ws.TypeChat, Payload: ws.ChatMessage{Message: "gg", Sender: "bob"}},
	}, rooms[0])
}

func TestBridge_MatchEventDispatch(t *testing.T) {
	mb := NewMemBroker(16)
	rec := &recorder{online: map[string]bool{"p1": true}}
	br := startBridge(t, mb, rec)

	ev := `{
		"detail-type": "GameLift Matchmaking Event",
		"detail": {
			"type": "MatchmakingSucceeded",
			"matchId": "m1",
			"tickets": [{"ticketId": "t1", "players": [{"playerId": "p1", "playerSessionId": "s1"}, {"playerId": "p2", "playerSessionId": "s2"}]}],
			"gameSessionInfo": {"ipAddress": "1.2.3.4", "port": 7777, "players": [{"playerId": "p1"}, {"playerId": "p2"}]}
		}
	}`
	require.NoError(t, br.PublishMatchEvent(context.Background(), []byte(`{"detail":{}}`)))
	require.NoError(t, br.PublishMatchEvent(context.Background(), []byte(`{"detail":{"type":"MatchmakingTimedOut","tickets":[{"players":[{"playerId":"p1"}]}]}}`)))
	require.NoError(t, br.PublishMatchEvent(context.Background(), []byte(ev)))

	require.Eventually(t, func() bool {
		_, direct := rec.snapshot()
		return len(direct) == 1
	}, time.Second, 5*time.Millisecond)

	// p2 不在线，什么也收不到；TimedOut 不推送
	time.Sleep(20 * time.Millisecond)
	_, direct := rec.snapshot()
	require.Len(t, direct, 1)
	assert.Equal(t, "p1", direct[0].To)
	env, ok := direct[0].V.(ws.Envelope)
	require.True(t, ok)
	assert.Equal(t, string(match.Succeeded), env.Type)
	assert.Equal(t, match.SucceededPayload{
		PlayerID:        "p1",
		PlayerSessionID: "s1",
		Players:         []match.Player{{PlayerID: "p1"}, {PlayerID: "p2"}},
		GameSessionInfo: match.Endpoint{IPAddress: "1.2.3.4", Port: 7777},
	}, env.Payload)
}

func TestBridge_StartFailsWhenSubscribeFails(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	br := NewBridge(NewRedisBroker(rdb, 16), &recorder{}, "matchmaking", "chat")
	assert.Error(t, br.Start(context.Background()))
}

// instance 一个网关实例：ws server + hub + bridge
type instance struct {
	srv *ws.Server
	url string
}

func newInstance(t *testing.T, authn *auth.Authenticator, store room.Store, b Broker) *instance {
	t.Helper()
	reg := ws.NewRegistry()
	rooms := room.NewService(store, nil)
	hub := ws.NewHub(reg, rooms)
	bridge := startBridge(t, b, hub)

	srv := ws.NewServer(reg, ws.Options{Auth: authn, Rooms: rooms, Chat: bridge})
	hs := httptest.NewServer(http.HandlerFunc(srv.ServeWS))
	t.Cleanup(hs.Close)
	return &instance{srv: srv, url: "ws" + strings.TrimPrefix(hs.URL, "http")}
}

func dialAs(t *testing.T, authn *auth.Authenticator, in *instance, player string) *websocket.Conn {
	t.Helper()
	tok, err := authn.Issue(player, "USER", auth.TokenAccess, time.Minute)
	require.NoError(t, err)
	c, _, err := websocket.DefaultDialer.Dial(in.url, http.Header{"Authorization": {"Bearer " + tok}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.Eventually(t, func() bool {
		_, ok := in.srv.Registry().Lookup(player)
		return ok
	}, time.Second, 5*time.Millisecond)
	return c
}

func writeFrame(t *testing.T, c *websocket.Conn, typ string, payload interface{}) {
	t.Helper()
	b, err := json.Marshal(map[string]interface{}{"type": typ, "payload": payload})
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, b))
}

func TestE2E_ChatAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	authn, err := auth.New(config.JWTConfig{Secret: "bridge-test"})
	require.NoError(t, err)
	store := room.NewRedisStore(rdb)
	broker := NewRedisBroker(rdb, 64)

	east := newInstance(t, authn, store, broker)
	west := newInstance(t, authn, store, broker)

	alice := dialAs(t, authn, east, "alice")
	bob := dialAs(t, authn, west, "bob")

	for _, p := range []struct {
		c  *websocket.Conn
		id string
	}{{alice, "alice"}, {bob, "bob"}} {
		writeFrame(t, p.c, ws.TypeJoin, ws.JoinPayload{Room: "global"})
		id := p.id
		require.Eventually(t, func() bool {
			ok, _ := store.IsMember(context.Background(), "global", id)
			return ok
		}, time.Second, 5*time.Millisecond)
	}

	writeFrame(t, alice, ws.TypeChat, ws.ChatPayload{Room: "global", Message: "hi"})

	_ = bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := bob.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat","payload":{"message":"hi","sender":"alice"}}`, string(b))

	// 发送者自己也是通过 broker 收到的
	_ = alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err = alice.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat","payload":{"message":"hi","sender":"alice"}}`, string(b))
}
