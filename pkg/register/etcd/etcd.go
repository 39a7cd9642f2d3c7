package etcd

import (
	"context"
	"fmt"
	"time"

	"github.com/ividrine/tactics-api/pkg/logger"
	"github.com/ividrine/tactics-api/pkg/register"
	"github.com/ividrine/tactics-api/pkg/safe"
	"github.com/segmentio/encoding/json"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

type Config struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	BasePath    string        `mapstructure:"base_path"`
	TTL         int64         `mapstructure:"ttl"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// EtcdRegister 用租约登记实例，进程挂掉后 key 随租约过期
type EtcdRegister struct {
	client   *clientv3.Client
	basePath string // 比如 "/tactics/services"
	ttl      int64  // 租约秒数
	leaseID  clientv3.LeaseID
	cancel   context.CancelFunc
}

func NewClient(c *Config) (*clientv3.Client, error) {
	dt := c.DialTimeout
	if dt <= 0 {
		dt = 5 * time.Second
	}
	return clientv3.New(clientv3.Config{
		Endpoints:   c.Endpoints,
		DialTimeout: dt,
	})
}

func NewEtcdRegister(c *clientv3.Client, basePath string, ttl int64) *EtcdRegister {
	if ttl <= 0 {
		ttl = 10
	}
	return &EtcdRegister{
		client:   c,
		basePath: basePath,
		ttl:      ttl,
	}
}

func (e *EtcdRegister) key(ins *register.Instance) string {
	return instanceKey(e.basePath, ins)
}

func instanceKey(basePath string, ins *register.Instance) string {
	return fmt.Sprintf("%s/%s/%s", basePath, ins.Name, ins.ID)
}

func (e *EtcdRegister) Register(ctx context.Context, ins *register.Instance) error {
	grant, err := e.client.Grant(ctx, e.ttl)
	if err != nil {
		return fmt.Errorf("grant lease: %w", err)
	}
	e.leaseID = grant.ID

	val, err := json.Marshal(ins)
	if err != nil {
		return err
	}
	if _, err = e.client.Put(ctx, e.key(ins), string(val), clientv3.WithLease(e.leaseID)); err != nil {
		return fmt.Errorf("put instance: %w", err)
	}

	// 续约跟随进程生命周期，不跟随 Register 的调用 ctx
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := e.client.KeepAlive(kaCtx, e.leaseID)
	if err != nil {
		cancel()
		return fmt.Errorf("keepalive: %w", err)
	}
	e.cancel = cancel
	safe.GoCtx(kaCtx, "etcd-keepalive", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					logger.Warn(ctx, "etcd lease keepalive channel closed", zap.String("key", e.key(ins)))
					return
				}
			}
		}
	})
	return nil
}

func (e *EtcdRegister) UnRegister(ctx context.Context, ins *register.Instance) error {
	if e.cancel != nil {
		e.cancel()
	}
	if _, err := e.client.Delete(ctx, e.key(ins)); err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if _, err := e.client.Revoke(ctx, e.leaseID); err != nil {
		return fmt.Errorf("revoke lease: %w", err)
	}
	return nil
}
