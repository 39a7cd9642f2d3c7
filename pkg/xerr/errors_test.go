package xerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeError_IsAndCodeOf(t *testing.T) {
	base := errors.New("redis: connection refused")
	err := fmt.Errorf("join room: %w", Wrap(base, ProviderUnavailable, ""))

	assert.True(t, errors.Is(err, NewErrCode(ProviderUnavailable)))
	assert.False(t, errors.Is(err, NewErrCode(Unauthorized)))
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, ProviderUnavailable, CodeOf(err))
	assert.Equal(t, ServerCommonError, CodeOf(base))
	assert.Equal(t, OK, CodeOf(nil))

	ce, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, "Matchmaking unavailable", ce.Msg)
}
