package room

import (
	"context"
	"sync"
)

// MemStore 单机模式用，进程退出即丢
type MemStore struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewMemStore() *MemStore {
	return &MemStore{rooms: make(map[string]map[string]struct{}, 64)}
}

func (m *MemStore) Add(_ context.Context, room, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.rooms[room]
	if set == nil {
		set = make(map[string]struct{}, 8)
		m.rooms[room] = set
	}
	set[playerID] = struct{}{}
	return nil
}

func (m *MemStore) Remove(_ context.Context, room, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set := m.rooms[room]; set != nil {
		delete(set, playerID)
		if len(set) == 0 {
			delete(m.rooms, room)
		}
	}
	return nil
}

func (m *MemStore) IsMember(_ context.Context, room, playerID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[room][playerID]
	return ok, nil
}

func (m *MemStore) Members(_ context.Context, room string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.rooms[room]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}
