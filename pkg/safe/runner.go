package safe

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/ividrine/tactics-api/pkg/logger"
	"go.uber.org/zap"
)

// Go 安全启动协程，panic 只影响当前协程
func Go(name string, fn func()) {
	go func() {
		defer recoverPanic(context.Background(), name)
		fn()
	}()
}

// GoCtx 同 Go，保留 ctx 便于日志带上链路信息
func GoCtx(ctx context.Context, name string, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer recoverPanic(ctx, name)
		fn(ctx)
	}()
}

// Group 记录启动的协程，退出时 Wait 等它们收尾
type Group struct {
	wg sync.WaitGroup
}

func (g *Group) GoCtx(ctx context.Context, name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	GoCtx(ctx, name, func(ctx context.Context) {
		defer g.wg.Done()
		fn(ctx)
	})
}

func (g *Group) Wait() { g.wg.Wait() }

func recoverPanic(ctx context.Context, name string) {
	r := recover()
	if r == nil {
		return
	}
	stack := string(debug.Stack())
	if logger.Log != nil {
		logger.Error(ctx, "🚨 GOROUTINE PANIC RECOVERED",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.String("stack", stack),
		)
		return
	}
	fmt.Printf("🚨 GOROUTINE PANIC (%s): %v\nStack: %s\n", name, r, stack)
}
