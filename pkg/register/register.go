package register

import "context"

// Instance 注册中心里的网关实例
type Instance struct {
	ID       string            `json:"id"`   // 实例 id，presence 里记录的也是它
	Name     string            `json:"name"` // 服务名称 eg:"realtime-gateway"
	Addr     string            `json:"addr"` // ip:port
	MetaData map[string]string `json:"metadata,omitempty"`
}

type Register interface {
	Register(ctx context.Context, ins *Instance) error
	UnRegister(ctx context.Context, ins *Instance) error
}
