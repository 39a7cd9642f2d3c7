package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ividrine/tactics-api/internal/realtime/app"
	"github.com/ividrine/tactics-api/internal/realtime/config"
	"github.com/ividrine/tactics-api/pkg/safe"
)

func main() {
	// 1. 支持 Ctrl+C / kubernetes 停止信号的 context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化 App
	gwApp, err := app.New(config.ServiceName)
	if err != nil {
		log.Fatalf("init realtime-gateway error: %v", err)
	}
	cleanUp, err := gwApp.Start(ctx)
	if err != nil {
		cleanUp()
		log.Fatalf("start realtime-gateway error: %v", err)
	}

	// 3. 启动 http
	errCh := make(chan error, 1)
	safe.Go("http-server", func() {
		errCh <- gwApp.Run()
	})

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Printf("realtime-gateway ListenAndServe error: %v", err)
		}
	}
	// 4. 先断 broker 和 ws，再关 http
	cleanUp()
	log.Println("realtime-gateway exit")
}
