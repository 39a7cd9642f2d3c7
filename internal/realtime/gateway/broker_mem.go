package gateway

import (
	"context"
	"path"
	"sync"
)

type memSub struct {
	channels map[string]struct{}
	patterns []string
	ch       chan Message
}

// MemBroker 单进程 fanout，测试和单机部署用
type MemBroker struct {
	mu     sync.RWMutex
	subs   map[*memSub]struct{}
	buffer int
}

func NewMemBroker(buffer int) *MemBroker {
	if buffer <= 0 {
		buffer = 4096
	}
	return &MemBroker{subs: make(map[*memSub]struct{}), buffer: buffer}
}

func (b *MemBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if _, ok := s.channels[channel]; ok {
			offer(s.ch, Message{Channel: channel, Payload: payload})
		}
		for _, p := range s.patterns {
			if ok, _ := path.Match(p, channel); ok {
				offer(s.ch, Message{Channel: channel, Pattern: p, Payload: payload})
			}
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, sub Subscription) (<-chan Message, error) {
	s := &memSub{
		channels: make(map[string]struct{}, len(sub.Channels)),
		patterns: append([]string(nil), sub.Patterns...),
		ch:       make(chan Message, b.buffer),
	}
	for _, c := range sub.Channels {
		s.channels[c] = struct{}{}
	}
	for _, p := range s.patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}()
	return s.ch, nil
}

func (b *MemBroker) Close() error { return nil }

// offer 非阻塞，满了就丢
func offer(ch chan<- Message, m Message) {
	select {
	case ch <- m:
	default:
	}
}
