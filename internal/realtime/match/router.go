package match

// Payload 推给玩家的内容，只有下面四种
type Payload interface {
	matchPayload()
}

type PotentialMatchCreatedPayload struct {
	AcceptanceTimeout  int  `json:"acceptanceTimeout"`
	AcceptanceRequired bool `json:"acceptanceRequired"`
}

type Endpoint struct {
	IPAddress string `json:"ipAddress"`
	Port      int    `json:"port"`
}

type SucceededPayload struct {
	PlayerID        string   `json:"playerId"`
	PlayerSessionID string   `json:"playerSessionId"`
	Players         []Player `json:"players"`
	GameSessionInfo Endpoint `json:"gameSessionInfo"`
}

// AcceptMatchPayload 还没表态的玩家 Accepted 为 nil，编码成 {}，和拒绝区分开
type AcceptMatchPayload struct {
	Accepted *bool `json:"accepted,omitempty"`
}

type AcceptMatchCompletedPayload struct {
	Acceptance string `json:"acceptance"`
}

func (PotentialMatchCreatedPayload) matchPayload() {}
func (SucceededPayload) matchPayload()             {}
func (AcceptMatchPayload) matchPayload()           {}
func (AcceptMatchCompletedPayload) matchPayload()  {}

// Delivery 一个玩家一条
type Delivery struct {
	PlayerID string
	Type     Type
	Payload  Payload
}

// Route 纯函数：事件 -> 每个玩家要收到的内容。
// Searching / TimedOut / Cancelled / Failed 不推送；没有 tickets 也什么都不做
func Route(d Detail) []Delivery {
	if len(d.Tickets) == 0 || !translated(d.Type) {
		return nil
	}

	var out []Delivery
	for _, t := range d.Tickets {
		for _, p := range t.Players {
			if p.PlayerID == "" {
				continue
			}
			out = append(out, Delivery{PlayerID: p.PlayerID, Type: d.Type, Payload: payloadFor(d, p)})
		}
	}
	return out
}

func translated(t Type) bool {
	switch t {
	case PotentialMatchCreated, Succeeded, AcceptMatch, AcceptMatchCompleted:
		return true
	default:
		return false
	}
}

func payloadFor(d Detail, p Player) Payload {
	switch d.Type {
	case PotentialMatchCreated:
		return PotentialMatchCreatedPayload{
			AcceptanceTimeout:  d.AcceptanceTimeout,
			AcceptanceRequired: d.AcceptanceRequired,
		}
	case Succeeded:
		pl := SucceededPayload{PlayerID: p.PlayerID, PlayerSessionID: p.PlayerSessionID}
		if gs := d.GameSessionInfo; gs != nil {
			pl.Players = gs.Players
			pl.GameSessionInfo = Endpoint{IPAddress: gs.IPAddress, Port: gs.Port}
		}
		return pl
	case AcceptMatch:
		return AcceptMatchPayload{Accepted: p.Accepted}
	case AcceptMatchCompleted:
		return AcceptMatchCompletedPayload{Acceptance: d.Acceptance}
	default:
		return nil
	}
}
