package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure = errors.New("ws: send buffer full")
	ErrClosed       = errors.New("ws: connection closed")
)

// Conn 一个玩家一个连接：readPump 处理入站帧，writePump 独占写
type Conn struct {
	id        string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	createdAt time.Time

	closeOnce   sync.Once
	mu          sync.Mutex
	closeCode   int
	closeReason string
}

func newConn(id string, wsConn *websocket.Conn, sendBuf int) *Conn {
	if sendBuf <= 0 {
		sendBuf = 256
	}
	return &Conn{
		id:        id,
		ws:        wsConn,
		send:      make(chan []byte, sendBuf),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
}

func (c *Conn) Identity() string { return c.id }

// TrySend 不阻塞；send 不会被 close，关闭信号走 done
func (c *Conn) TrySend(b []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close 只有第一次生效，由 writePump 发 close 帧并关闭底层连接
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeReason = code, reason
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) closeStatus() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}
