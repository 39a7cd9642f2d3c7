package etcd

import (
	"testing"

	"github.com/ividrine/tactics-api/pkg/register"
	"github.com/stretchr/testify/assert"
)

func TestInstanceKey(t *testing.T) {
	ins := &register.Instance{ID: "gw-1", Name: "realtime-gateway", Addr: "10.0.0.3:8080"}
	assert.Equal(t, "/tactics/services/realtime-gateway/gw-1", instanceKey("/tactics/services", ins))
}

func TestNewEtcdRegister_DefaultTTL(t *testing.T) {
	r := NewEtcdRegister(nil, "/tactics/services", 0)
	assert.Equal(t, int64(10), r.ttl)
}
