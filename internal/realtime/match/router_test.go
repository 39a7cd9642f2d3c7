package match

import (
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestDecode_EventBridgeEnvelope(t *testing.T) {
	raw := `{
		"version": "0",
		"id": "a1",
		"detail-type": "GameLift Matchmaking Event",
		"source": "aws.gamelift",
		"account": "123456789012",
		"time": "2024-05-01T10:00:00Z",
		"region": "us-east-1",
		"resources": ["arn:aws:gamelift:us-east-1:123456789012:matchmakingconfiguration/GameMatchmakingConfig"],
		"detail": {
			"type": "MatchmakingSearching",
			"tickets": [{"ticketId": "t1", "startTime": "2024-05-01T09:59:00Z", "players": [{"playerId": "p1", "team": "red"}]}],
			"estimatedWaitMillis": "NOT_AVAILABLE"
		}
	}`
	ev, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "GameLift Matchmaking Event", ev.DetailType)
	assert.Equal(t, Searching, ev.Detail.Type)
	assert.True(t, ev.Detail.Type.Known())
	require.Len(t, ev.Detail.Tickets, 1)
	assert.Equal(t, "red", ev.Detail.Tickets[0].Players[0].Team)
}

func TestDecode_Rejects(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"detail":{}}`))
	assert.ErrorIs(t, err, ErrMissingType)
}

func TestRoute_Succeeded(t *testing.T) {
	players := []Player{{PlayerID: "p1", Team: "red"}, {PlayerID: "p2", Team: "blue"}}
	d := Detail{
		Type: Succeeded,
		Tickets: []Ticket{{
			TicketID: "t1",
			Players:  []Player{{PlayerID: "p1", PlayerSessionID: "s1"}},
		}},
		GameSessionInfo: &GameSessionInfo{IPAddress: "1.2.3.4", Port: 7777, Players: players},
	}

	out := Route(d)
	require.Len(t, out, 1)
	assert.Equal(t, Delivery{
		PlayerID: "p1",
		Type:     Succeeded,
		Payload: SucceededPayload{
			PlayerID:        "p1",
			PlayerSessionID: "s1",
			Players:         players,
			GameSessionInfo: Endpoint{IPAddress: "1.2.3.4", Port: 7777},
		},
	}, out[0])

	b, err := json.Marshal(out[0].Payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"playerId": "p1",
		"playerSessionId": "s1",
		"players": [{"playerId": "p1", "team": "red"}, {"playerId": "p2", "team": "blue"}],
		"gameSessionInfo": {"ipAddress": "1.2.3.4", "port": 7777}
	}`, string(b))
}

func TestRoute_PerTypePayloads(t *testing.T) {
	tickets := []Ticket{
		{TicketID: "t1", Players: []Player{{PlayerID: "p1", Accepted: boolPtr(true)}}},
		{TicketID: "t2", Players: []Player{{PlayerID: "p2", Accepted: boolPtr(false)}, {PlayerID: "p3"}}},
	}

	out := Route(Detail{Type: PotentialMatchCreated, Tickets: tickets, AcceptanceTimeout: 30, AcceptanceRequired: true})
	require.Len(t, out, 3)
	for _, d := range out {
		assert.Equal(t, PotentialMatchCreatedPayload{AcceptanceTimeout: 30, AcceptanceRequired: true}, d.Payload)
	}

	out = Route(Detail{Type: AcceptMatch, Tickets: tickets})
	require.Len(t, out, 3)
	assert.Equal(t, AcceptMatchPayload{Accepted: boolPtr(true)}, out[0].Payload)
	assert.Equal(t, AcceptMatchPayload{Accepted: boolPtr(false)}, out[1].Payload)
	assert.Equal(t, AcceptMatchPayload{}, out[2].Payload)

	// 未表态和拒绝在线上格式不同
	for i, want := range []string{`{"accepted":true}`, `{"accepted":false}`, `{}`} {
		b, err := json.Marshal(out[i].Payload)
		require.NoError(t, err)
		assert.JSONEq(t, want, string(b), out[i].PlayerID)
	}

	out = Route(Detail{Type: AcceptMatchCompleted, Tickets: tickets, Acceptance: "Accepted"})
	require.Len(t, out, 3)
	assert.Equal(t, []string{"p1", "p2", "p3"}, []string{out[0].PlayerID, out[1].PlayerID, out[2].PlayerID})
	assert.Equal(t, AcceptMatchCompletedPayload{Acceptance: "Accepted"}, out[2].Payload)
}

func TestRoute_NoOps(t *testing.T) {
	tickets := []Ticket{{TicketID: "t1", Players: []Player{{PlayerID: "p1"}}}}
	for _, typ := range []Type{Searching, TimedOut, Cancelled, Failed, "SomethingNew"} {
		assert.Empty(t, Route(Detail{Type: typ, Tickets: tickets}), typ)
	}
	assert.Empty(t, Route(Detail{Type: Succeeded}))
	assert.False(t, Type("SomethingNew").Known())
}
