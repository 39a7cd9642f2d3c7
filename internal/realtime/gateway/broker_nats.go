package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// NatsBroker ":" 映射成 "."，"chat:*" 订阅成 "chat.*"
type NatsBroker struct {
	nc     *nats.Conn
	buffer int
}

func NewNatsBroker(url string, buffer int, opts ...nats.Option) (*NatsBroker, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return newNatsBroker(nc, buffer), nil
}

func newNatsBroker(nc *nats.Conn, buffer int) *NatsBroker {
	if buffer <= 0 {
		buffer = 8192
	}
	return &NatsBroker{nc: nc, buffer: buffer}
}

func (b *NatsBroker) Publish(_ context.Context, channel string, payload []byte) error {
	return b.nc.Publish(topicToSubject(channel), payload)
}

func (b *NatsBroker) Subscribe(ctx context.Context, sub Subscription) (<-chan Message, error) {
	out := make(chan Message, b.buffer)
	// 回调可能在 Unsubscribe 之后还在跑，关闭 out 要和回调互斥
	var (
		mu     sync.RWMutex
		closed bool
	)
	subs := make([]*nats.Subscription, 0, len(sub.Channels)+len(sub.Patterns))

	add := func(topic, pattern string) error {
		s, err := b.nc.Subscribe(topicToSubject(topic), func(m *nats.Msg) {
			mu.RLock()
			defer mu.RUnlock()
			if closed {
				return
			}
			// at-most-once：慢消费者直接丢，避免把 NATS 回调卡死
			offer(out, Message{Channel: subjectToTopic(m.Subject), Pattern: pattern, Payload: m.Data})
		})
		if err != nil {
			return err
		}
		subs = append(subs, s)
		return nil
	}
	unsubAll := func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}

	for _, c := range sub.Channels {
		if err := add(c, ""); err != nil {
			unsubAll()
			return nil, err
		}
	}
	for _, p := range sub.Patterns {
		if err := add(p, p); err != nil {
			unsubAll()
			return nil, err
		}
	}
	// Flush 保证服务端已经处理了 SUB
	if err := b.nc.Flush(); err != nil {
		unsubAll()
		return nil, err
	}

	go func() {
		<-ctx.Done()
		unsubAll()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}

func (b *NatsBroker) Close() error {
	if b.nc != nil {
		_ = b.nc.Drain()
		b.nc.Close()
	}
	return nil
}

func topicToSubject(topic string) string { return strings.ReplaceAll(topic, ":", ".") }
func subjectToTopic(subj string) string  { return strings.ReplaceAll(subj, ".", ":") }
