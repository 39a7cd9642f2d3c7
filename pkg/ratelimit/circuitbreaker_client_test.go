package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/ividrine/tactics-api/pkg/xerr"
	"github.com/stretchr/testify/assert"
)

func TestManager_TripsAfterConsecutiveFailures(t *testing.T) {
	m := NewManager("test", Rule{TripConsecutiveFailures: 2, Timeout: time.Minute}, nil)
	boom := errors.New("gamelift: throttled")

	assert.ErrorIs(t, m.Do("describe", func() error { return boom }), boom)
	assert.ErrorIs(t, m.Do("describe", func() error { return boom }), boom)

	called := false
	err := m.Do("describe", func() error { called = true; return nil })
	assert.False(t, called, "熔断打开后不应再调用下游")
	assert.Equal(t, xerr.ProviderUnavailable, xerr.CodeOf(err))

	// 其它方法不受影响
	assert.NoError(t, m.Do("start", func() error { return nil }))
}

func TestManager_BusinessRejectionDoesNotTrip(t *testing.T) {
	m := NewManager("test", Rule{TripConsecutiveFailures: 1, Timeout: time.Minute}, nil)
	denied := xerr.NewErrCode(xerr.Unauthorized)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, m.Do("describe", func() error { return denied }), denied)
	}
	assert.NoError(t, m.Do("describe", func() error { return nil }))
}
