package ws

import "sync"

// Handle 注册表里保存的连接句柄
type Handle interface {
	Identity() string
	// TrySend 不阻塞，缓冲满返回 ErrBackpressure
	TrySend(b []byte) error
	Close(code int, reason string)
}

// Registry playerId -> 当前连接，同一身份只保留最后一个
type Registry struct {
	mu sync.RWMutex
	m  map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]Handle, 1024)}
}

// Register 直接覆盖，返回被顶掉的旧句柄（不通知它）
func (r *Registry) Register(h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.m[h.Identity()]
	r.m[h.Identity()] = h
	return prev
}

func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	delete(r.m, identity)
	r.mu.Unlock()
}

// Release 只有当前登记的还是 h 时才删除，旧连接关闭不会误删新连接
func (r *Registry) Release(identity string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.m[identity]; ok && cur == h {
		delete(r.m, identity)
		return true
	}
	return false
}

func (r *Registry) Lookup(identity string) (Handle, bool) {
	r.mu.RLock()
	h, ok := r.m[identity]
	r.mu.RUnlock()
	return h, ok
}

func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.m))
	for id := range r.m {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
