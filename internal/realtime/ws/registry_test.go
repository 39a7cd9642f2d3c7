package ws

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id string

	mu        sync.Mutex
	sent      []string
	err       error
	closeCode int
}

func (f *fakeHandle) Identity() string { return f.id }

func (f *fakeHandle) TrySend(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, string(b))
	return nil
}

func (f *fakeHandle) Close(code int, _ string) {
	f.mu.Lock()
	f.closeCode = code
	f.mu.Unlock()
}

func (f *fakeHandle) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type staticMembers map[string][]string

func (m staticMembers) Members(_ context.Context, room string) ([]string, error) {
	if ids, ok := m[room]; ok {
		return ids, nil
	}
	return nil, nil
}

func TestRegistry_LastWriterWins(t *testing.T) {
	reg := NewRegistry()
	first := &fakeHandle{id: "alice"}
	second := &fakeHandle{id: "alice"}

	assert.Nil(t, reg.Register(first))
	assert.Same(t, first, reg.Register(second))

	h, ok := reg.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, second, h)
	assert.Equal(t, 1, reg.Len())
	// 被顶掉的连接不会收到通知
	assert.Zero(t, first.closeCode)
}

func TestRegistry_ReleaseOnlyRemovesOwnHandle(t *testing.T) {
	reg := NewRegistry()
	first := &fakeHandle{id: "alice"}
	second := &fakeHandle{id: "alice"}
	reg.Register(first)
	reg.Register(second)

	assert.False(t, reg.Release("alice", first))
	_, ok := reg.Lookup("alice")
	assert.True(t, ok)

	assert.True(t, reg.Release("alice", second))
	_, ok = reg.Lookup("alice")
	assert.False(t, ok)
}

func TestRegistry_UnregisterAndIdentities(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		reg.Register(&fakeHandle{id: id})
	}
	reg.Unregister("b")
	reg.Unregister("nobody")

	ids := reg.Identities()
	sort.Strings(ids)
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := &fakeHandle{id: "alice"}
			reg.Register(h)
			reg.Lookup("alice")
			reg.Release("alice", h)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, reg.Len(), 1)
}

func TestHub_BroadcastTargetsMembersOnly(t *testing.T) {
	reg := NewRegistry()
	a := &fakeHandle{id: "A"}
	b := &fakeHandle{id: "B"}
	c := &fakeHandle{id: "C"}
	for _, h := range []*fakeHandle{a, b, c} {
		reg.Register(h)
	}
	hub := NewHub(reg, staticMembers{"global": {"A", "B"}})

	env := ChatEnvelope(ChatMessage{Message: "hi", Sender: "A"})
	require.NoError(t, hub.BroadcastToRoom(context.Background(), "global", env))

	want := `{"type":"chat","payload":{"message":"hi","sender":"A"}}`
	assert.Equal(t, []string{want}, a.messages())
	assert.Equal(t, []string{want}, b.messages())
	assert.Empty(t, c.messages())
}

func TestHub_MissingOrFailingMemberDoesNotBlockOthers(t *testing.T) {
	reg := NewRegistry()
	a := &fakeHandle{id: "A"}
	slow := &fakeHandle{id: "S", err: ErrBackpressure}
	gone := &fakeHandle{id: "G", err: ErrClosed}
	reg.Register(a)
	reg.Register(slow)
	reg.Register(gone)
	hub := NewHub(reg, staticMembers{"lobby-1": {"S", "B", "G", "A"}})

	require.NoError(t, hub.BroadcastToRoom(context.Background(), "lobby-1", Envelope{Type: "chat"}))

	assert.Len(t, a.messages(), 1)
	assert.Equal(t, websocket.CloseTryAgainLater, slow.closeCode)
	assert.Zero(t, gone.closeCode)
}

func TestHub_SendToIdentity(t *testing.T) {
	reg := NewRegistry()
	a := &fakeHandle{id: "A"}
	reg.Register(a)
	hub := NewHub(reg, staticMembers{})

	assert.True(t, hub.SendToIdentity(context.Background(), "A", Envelope{Type: "AcceptMatch", Payload: map[string]bool{"accepted": true}}))
	assert.False(t, hub.SendToIdentity(context.Background(), "offline", Envelope{Type: "AcceptMatch"}))
	assert.Equal(t, []string{`{"type":"AcceptMatch","payload":{"accepted":true}}`}, a.messages())
}

type failingMembers struct{}

func (failingMembers) Members(context.Context, string) ([]string, error) {
	return nil, errors.New("redis down")
}

func TestHub_MemberLookupError(t *testing.T) {
	hub := NewHub(NewRegistry(), failingMembers{})
	assert.Error(t, hub.BroadcastToRoom(context.Background(), "global", Envelope{Type: "chat"}))
}
