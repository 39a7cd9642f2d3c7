package match

import (
	"errors"
	"fmt"

	"github.com/segmentio/encoding/json"
)

// Type GameLift FlexMatch 事件类型
type Type string

const (
	Searching             Type = "MatchmakingSearching"
	PotentialMatchCreated Type = "PotentialMatchCreated"
	AcceptMatch           Type = "AcceptMatch"
	AcceptMatchCompleted  Type = "AcceptMatchCompleted"
	Succeeded             Type = "MatchmakingSucceeded"
	TimedOut              Type = "MatchmakingTimedOut"
	Cancelled             Type = "MatchmakingCancelled"
	Failed                Type = "MatchmakingFailed"
)

// Known 是否在事件词表里
func (t Type) Known() bool {
	switch t {
	case Searching, PotentialMatchCreated, AcceptMatch, AcceptMatchCompleted,
		Succeeded, TimedOut, Cancelled, Failed:
		return true
	}
	return false
}

type Player struct {
	PlayerID         string                     `json:"playerId"`
	PlayerSessionID  string                     `json:"playerSessionId,omitempty"`
	PlayerAttributes map[string]json.RawMessage `json:"playerAttributes,omitempty"`
	Team             string                     `json:"team,omitempty"`
	LatencyInMs      map[string]int             `json:"latencyInMs,omitempty"`
	Accepted         *bool                      `json:"accepted,omitempty"`
}

type Ticket struct {
	TicketID  string   `json:"ticketId"`
	StartTime string   `json:"startTime"`
	Players   []Player `json:"players"`
}

type GameSessionInfo struct {
	Players        []Player `json:"players,omitempty"`
	GameSessionArn string   `json:"gameSessionArn,omitempty"`
	IPAddress      string   `json:"ipAddress,omitempty"`
	Port           int      `json:"port,omitempty"`
}

type RuleEvaluationMetric struct {
	RuleName    string `json:"ruleName"`
	PassedCount int    `json:"passedCount"`
	FailedCount int    `json:"failedCount"`
}

// Detail 八种事件共用一个结构，按 Type 取对应字段
type Detail struct {
	Type                  Type                   `json:"type"`
	Tickets               []Ticket               `json:"tickets"`
	MatchID               string                 `json:"matchId,omitempty"`
	GameSessionInfo       *GameSessionInfo       `json:"gameSessionInfo,omitempty"`
	AcceptanceTimeout     int                    `json:"acceptanceTimeout,omitempty"`
	AcceptanceRequired    bool                   `json:"acceptanceRequired,omitempty"`
	Acceptance            string                 `json:"acceptance,omitempty"`
	EstimatedWaitMillis   json.RawMessage        `json:"estimatedWaitMillis,omitempty"` // 数字或 "NOT_AVAILABLE"
	RuleEvaluationMetrics []RuleEvaluationMetric `json:"ruleEvaluationMetrics,omitempty"`
	Reason                string                 `json:"reason,omitempty"`
	Message               string                 `json:"message,omitempty"`
}

// Event EventBridge 事件外壳，SNS Message 字段里就是它
type Event struct {
	Version    string   `json:"version"`
	ID         string   `json:"id"`
	DetailType string   `json:"detail-type"`
	Source     string   `json:"source"`
	Account    string   `json:"account"`
	Time       string   `json:"time"`
	Region     string   `json:"region"`
	Resources  []string `json:"resources"`
	Detail     Detail   `json:"detail"`
}

var ErrMissingType = errors.New("match event: missing detail.type")

func Decode(b []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("match event: %w", err)
	}
	if ev.Detail.Type == "" {
		return nil, ErrMissingType
	}
	return &ev, nil
}
