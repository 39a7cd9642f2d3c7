package ws

import "github.com/segmentio/encoding/json"

// 入站帧类型
const (
	TypeJoin  = "join"
	TypeChat  = "chat"
	TypeLeave = "leave"
	TypeError = "error"
)

// ClientMsg 客户端 -> 服务端，payload 按 type 再解一次
type ClientMsg struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type JoinPayload struct {
	Room     string `json:"room"`
	Password string `json:"password,omitempty"`
}

type ChatPayload struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

type LeavePayload struct {
	Room string `json:"room"`
}

// Envelope 服务端 -> 客户端
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ErrorFrame 错误帧没有 payload，直接带 message
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChatMessage chat 频道上的消息体，也是推给客户端的 payload
type ChatMessage struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

func NewErrorFrame(msg string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Message: msg}
}

func ChatEnvelope(m ChatMessage) Envelope {
	return Envelope{Type: TypeChat, Payload: m}
}
