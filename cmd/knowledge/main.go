package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/beego/beego/v2/server/web"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aihub/rag-ingest/app/bootstrap"
	"github.com/aihub/rag-ingest/app/controllers"
	"github.com/aihub/rag-ingest/app/router"
	"github.com/aihub/rag-ingest/internal/database"
	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/knowledge"
	"github.com/aihub/rag-ingest/internal/queue"
	"github.com/aihub/rag-ingest/internal/repository"
	"github.com/aihub/rag-ingest/internal/services"
	"github.com/aihub/rag-ingest/internal/storage"
)

type readiness interface {
	Ready() bool
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Init(ctx)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	err = app.Invoke(func(
		uploads *services.UploadService,
		retrieval *services.RetrievalService,
		documents repository.DocumentStore,
		fragments repository.FragmentStore,
		hc *database.HealthChecker,
		store *storage.MinIOStore,
		publisher queue.Publisher,
		index knowledge.VectorIndex,
		registry *prometheus.Registry,
	) {
		deps := router.Dependencies{
			Uploads:   uploads,
			Documents: documents,
			Fragments: fragments,
			Retrieval: retrieval,
			Checks: map[string]controllers.Check{
				"database": hc.Check,
				"storage":  store.HealthCheck,
				"queue": func(context.Context) error {
					if r, ok := publisher.(readiness); ok && !r.Ready() {
						return apperrors.NewMessagingError("event producer not ready")
					}
					return nil
				},
			},
			Logger: app.Logger.Named("http"),
		}
		if checker, ok := index.(healthChecker); ok {
			deps.Checks["vector_index"] = checker.HealthCheck
		}
		if app.Config.Metrics.Enabled {
			deps.Gatherer = registry
		}
		router.Init(deps)
	})
	if err != nil {
		app.Logger.Fatal("failed to wire http layer", zap.Error(err))
	}

	workerDone := make(chan struct{})
	if app.Config.Server.EmbeddedWorker {
		go func() {
			defer close(workerDone)
			if err := app.RunWorker(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.Logger.Error("embedded worker stopped", zap.Error(err))
			}
		}()
	} else {
		close(workerDone)
	}

	web.BConfig.AppName = "rag-ingest"
	web.BConfig.CopyRequestBody = true
	web.BConfig.Listen.HTTPPort = app.Config.Server.Port
	// 多部分表单超出部分落盘，文件大小由上传服务校验
	web.BConfig.MaxMemory = app.Config.Upload.MaxSize + 1<<20
	if app.Config.Server.Env == "production" {
		web.BConfig.RunMode = web.PROD
	}

	app.Logger.Info("starting knowledge service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	go web.Run()

	<-ctx.Done()
	app.Logger.Info("shutting down knowledge service")
	// 等待在途文档处理完再释放连接
	<-workerDone
}
