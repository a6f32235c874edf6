package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aihub/rag-ingest/app/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Init(ctx)
	if err != nil {
		log.Fatalf("failed to bootstrap worker: %v", err)
	}
	defer app.Shutdown()

	// Run阻塞直到收到退出信号，在途消息处理完后返回
	if err := app.RunWorker(ctx); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error("ingestion worker stopped", zap.Error(err))
		return
	}
	app.Logger.Info("ingestion worker stopped")
}
