package matchmaking

import "context"

// AttributeValue 与 GameLift PlayerAttributes 的 JSON 结构一致，四选一
type AttributeValue struct {
	S   *string            `json:"S,omitempty"`
	N   *float64           `json:"N,omitempty"`
	SL  []string           `json:"SL,omitempty"`
	SDM map[string]float64 `json:"SDM,omitempty"`
}

type StartRequest struct {
	Attributes map[string]AttributeValue `json:"attributes"`
	Latencies  map[string]int32          `json:"latencies"`
}

type Ticket struct {
	TicketID          string `json:"ticketId"`
	Status            string `json:"status"`
	EstimatedWaitTime *int32 `json:"estimatedWaitTime,omitempty"`
}

// Provider 外部撮合服务
type Provider interface {
	IsPlayerInGameSession(ctx context.Context, playerID, gameSessionID string) (bool, error)
	StartMatchmaking(ctx context.Context, playerID string, req StartRequest) (*Ticket, error)
	StopMatchmaking(ctx context.Context, playerID, ticketID string) error
	AcceptMatch(ctx context.Context, playerID, ticketID string, accept bool) error
}
