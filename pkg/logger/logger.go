package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ctx 里携带链路信息的 key
const (
	TraceIdKey   = "trace_id"
	RequestIdKey = "request_id"
)

// 全局 Logger 实例，Init 之前是 Nop，避免测试里空指针
var Log = zap.NewNop()

// level 单独拎出来，配置热更新时可以直接调
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// Init 初始化日志组件
// serviceName: 当前服务名称 (例如 "realtime-gateway")
// lvl: 日志级别 (debug, info, warn, error)
func Init(serviceName string, lvl string) {
	InitWithFile(serviceName, lvl, "")
}

// InitWithFile 同 Init，logFile 为空时写 logs/{serviceName}.log，
// 打不开文件就只写 stdout，不中断启动
func InitWithFile(serviceName string, lvl string, logFile string) {
	SetLevel(lvl)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	writeSyncers := []zapcore.WriteSyncer{
		zapcore.AddSync(os.Stdout),
	}

	if logFile == "" {
		logFile = filepath.Join("logs", serviceName+".log")
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err == nil {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			writeSyncers = append(writeSyncers, zapcore.AddSync(file))
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writeSyncers...),
		level,
	)

	// 封装了一层，CallerSkip 1 才能指到真实调用点
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", serviceName))
}

// SetLevel 运行时调整级别；非法值回退到 info
func SetLevel(lvl string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(lvl)); err != nil {
		l = zap.InfoLevel
	}
	level.SetLevel(l)
}

// Level 当前级别
func Level() zapcore.Level { return level.Level() }

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Info(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Error(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Warn(msg, fields...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Debug(msg, fields...)
}

// Fatal 会调用 os.Exit
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Fatal(msg, fields...)
}

// extractTrace 从 ctx 里取 trace_id / request_id 追加到 fields
func extractTrace(ctx context.Context, fields *[]zap.Field) {
	if ctx == nil {
		return
	}
	if traceID, ok := ctx.Value(TraceIdKey).(string); ok && traceID != "" {
		*fields = append(*fields, zap.String(TraceIdKey, traceID))
	}
	if rid, ok := ctx.Value(RequestIdKey).(string); ok && rid != "" {
		*fields = append(*fields, zap.String(RequestIdKey, rid))
	}
}

// Sync 刷新缓冲区 (main 里 defer 调用)
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
