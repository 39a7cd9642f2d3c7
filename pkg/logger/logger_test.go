package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 把输出劫持到 buffer，级别走包内的 AtomicLevel
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	buffer := &bytes.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.MessageKey = "msg"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(buffer), level)
	prev := Log
	Log = zap.New(core)
	t.Cleanup(func() {
		Log = prev
		SetLevel("info")
	})
	return buffer
}

func TestLogger_Info_WithTraceAndRequestID(t *testing.T) {
	buffer := captureLogs(t)

	ctx := context.WithValue(context.Background(), TraceIdKey, "trace-12345")
	ctx = context.WithValue(ctx, RequestIdKey, "req-1")

	Info(ctx, "player connected", zap.String("player_id", "alice"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry), "日志输出必须是合法的 JSON")
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "player connected", entry["msg"])
	assert.Equal(t, "alice", entry["player_id"])
	assert.Equal(t, "trace-12345", entry["trace_id"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestLogger_Error_NoTraceID(t *testing.T) {
	buffer := captureLogs(t)

	Error(context.Background(), "broker subscribe failed", zap.String("broker", "redis"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))
	_, exists := entry["trace_id"]
	assert.False(t, exists, "没有 TraceID 的 Context 不应该输出 trace_id 字段")
	assert.Equal(t, "error", entry["level"])
}

func TestLogger_SetLevel_FiltersDebug(t *testing.T) {
	buffer := captureLogs(t)

	Debug(context.Background(), "hidden")
	assert.Zero(t, buffer.Len())

	SetLevel("debug")
	assert.Equal(t, zapcore.DebugLevel, Level())
	Debug(context.Background(), "visible")
	assert.Contains(t, buffer.String(), "visible")

	SetLevel("not-a-level")
	assert.Equal(t, zapcore.InfoLevel, Level())
}
