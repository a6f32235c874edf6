package bootstrap

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aihub/rag-ingest/internal/config"
	"github.com/aihub/rag-ingest/internal/database"
	"github.com/aihub/rag-ingest/internal/di"
	"github.com/aihub/rag-ingest/internal/logger"
	"github.com/aihub/rag-ingest/internal/queue"
	"github.com/aihub/rag-ingest/internal/services"
)

// App encapsulates the dependency container and the resources that need to be
// cleaned up on shutdown.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	container *dig.Container
	lifecycle *di.Lifecycle
}

// Init loads configuration, builds the logger and the dependency container, and
// verifies the metadata store before any request or message is served.
func Init(ctx context.Context) (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	zapLogger, err := logger.New(logger.Options{Env: cfg.Server.Env, Level: cfg.Log.Level})
	if err != nil {
		return nil, err
	}
	loader.Watch(zapLogger)

	container, lifecycle, err := di.NewContainer()
	if err != nil {
		return nil, err
	}
	if err := di.RegisterProviders(container, cfg, zapLogger); err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		Logger:    zapLogger,
		container: container,
		lifecycle: lifecycle,
	}

	// 元数据库不可达时中止启动
	if err := app.Invoke(func(hc *database.HealthChecker) error {
		return hc.CheckOnStartup(ctx)
	}); err != nil {
		app.Shutdown()
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := app.Invoke(migrate); err != nil {
			app.Shutdown()
			return nil, err
		}
	}

	zapLogger.Info("application bootstrapped",
		zap.String("env", cfg.Server.Env),
		zap.String("queue", cfg.Queue.Provider),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.String("retrieval", cfg.Retrieval.Backend))
	return app, nil
}

func migrate(db *gorm.DB, l *logrus.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	manager, err := database.NewMigrationManager(sqlDB, l)
	if err != nil {
		return err
	}
	return manager.Up()
}

// Invoke resolves dependencies from the container.
func (a *App) Invoke(fn interface{}) error {
	return a.container.Invoke(fn)
}

// RunWorker consumes document events until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	return a.Invoke(func(consumer queue.Consumer, orchestrator *services.IngestionOrchestrator) error {
		a.Logger.Info("ingestion worker started",
			zap.String("queue", a.Config.Queue.Provider),
			zap.Int("workers", a.Config.Pipeline.Workers))
		return consumer.Run(ctx, orchestrator.HandleDelivery)
	})
}

// Shutdown releases resources in reverse order of acquisition.
func (a *App) Shutdown() {
	if err := a.lifecycle.Close(a.Logger); err != nil {
		a.Logger.Error("shutdown finished with errors", zap.Error(err))
	}
	_ = a.Logger.Sync()
}
