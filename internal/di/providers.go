package di

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aihub/rag-ingest/internal/config"
	"github.com/aihub/rag-ingest/internal/database"
	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/knowledge"
	"github.com/aihub/rag-ingest/internal/metrics"
	"github.com/aihub/rag-ingest/internal/queue"
	"github.com/aihub/rag-ingest/internal/repository"
	"github.com/aihub/rag-ingest/internal/services"
	"github.com/aihub/rag-ingest/internal/storage"
)

const (
	breakerFailureThreshold = 5
	breakerCooldown         = time.Minute
)

// RegisterProviders 注册所有依赖提供者，构造函数在首次Invoke时才执行
func RegisterProviders(container *dig.Container, cfg *config.Config, log *zap.Logger) error {
	if err := container.Provide(func() *config.Config { return cfg }); err != nil {
		return err
	}
	if err := container.Provide(func() *zap.Logger { return log }); err != nil {
		return err
	}

	providers := []interface{}{
		provideLogrus,
		provideDatabase,
		provideHealthChecker,
		provideRedis,
		provideMinIO,
		func(s *storage.MinIOStore) storage.BlobStore { return s },
		repository.NewDocumentRepository,
		repository.NewFragmentRepository,
		func(r *repository.DocumentRepository) repository.DocumentStore { return r },
		func(r *repository.FragmentRepository) repository.FragmentStore { return r },
		newQueueFactory,
		func(f *queueFactory) (queue.Publisher, error) { return f.Publisher() },
		func(f *queueFactory) (queue.Consumer, error) { return f.Consumer() },
		provideRegistry,
		provideMetrics,
		provideEmbedder,
		provideVectorIndex,
		provideProcessingLock,
		provideUploadService,
		provideOrchestrator,
		provideRetrievalService,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return fmt.Errorf("register provider: %w", err)
		}
	}
	return nil
}

// provideLogrus 数据库层（健康检查、迁移）使用logrus
func provideLogrus(cfg *config.Config) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return l
}

func provideDatabase(cfg *config.Config, lc *Lifecycle) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to open metadata store").WithCause(err)
	}
	lc.Append("postgres", func() error { return database.Close(db) })
	return db, nil
}

func provideHealthChecker(db *gorm.DB, log *logrus.Logger) (*database.HealthChecker, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return database.NewHealthChecker(sqlDB, log), nil
}

// provideRedis 未启用且队列不走Redis时返回nil
func provideRedis(cfg *config.Config, lc *Lifecycle) (*redis.Client, error) {
	if !cfg.Redis.Enabled && cfg.Queue.Provider != "redis" {
		return nil, nil
	}
	client, err := database.OpenRedis(context.Background(), cfg.Redis)
	if err != nil {
		return nil, apperrors.NewMessagingError("redis unavailable").WithCause(err)
	}
	lc.Append("redis", client.Close)
	return client, nil
}

func provideMinIO(cfg *config.Config, log *zap.Logger) (*storage.MinIOStore, error) {
	store, err := storage.NewMinIOStore(cfg.Storage, log.Named("storage"))
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

// queueFactory 同一个Redis Stream通道同时充当发布方和消费方
type queueFactory struct {
	cfg       *config.Config
	redis     *redis.Client
	lifecycle *Lifecycle
	logger    *zap.Logger

	mu     sync.Mutex
	stream *queue.RedisStreamChannel
}

func newQueueFactory(cfg *config.Config, client *redis.Client, lc *Lifecycle, log *zap.Logger) *queueFactory {
	return &queueFactory{cfg: cfg, redis: client, lifecycle: lc, logger: log.Named("queue")}
}

func (f *queueFactory) Publisher() (queue.Publisher, error) {
	if f.cfg.Queue.Provider == "redis" {
		return f.streamChannel()
	}
	publisher, err := queue.NewKafkaPublisher(f.cfg.Queue.Kafka, f.logger)
	if err != nil {
		return nil, err
	}
	f.lifecycle.Append("kafka-producer", publisher.Close)
	return publisher, nil
}

func (f *queueFactory) Consumer() (queue.Consumer, error) {
	if f.cfg.Queue.Provider == "redis" {
		return f.streamChannel()
	}
	consumer, err := queue.NewKafkaConsumer(f.cfg.Queue.Kafka, f.cfg.Pipeline.Workers, f.logger)
	if err != nil {
		return nil, err
	}
	f.lifecycle.Append("kafka-consumer", consumer.Close)
	return consumer, nil
}

func (f *queueFactory) streamChannel() (*queue.RedisStreamChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stream != nil {
		return f.stream, nil
	}
	if f.redis == nil {
		return nil, apperrors.NewConfigError("redis queue provider requires a redis connection")
	}
	stream, err := queue.NewRedisStreamChannel(context.Background(), f.redis, f.cfg.Queue.Redis, f.cfg.Pipeline.Workers, f.logger)
	if err != nil {
		return nil, err
	}
	f.lifecycle.Append("redis-stream", stream.Close)
	f.stream = stream
	return stream, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// provideMetrics 关闭指标时返回nil，PipelineMetrics的方法对nil安全
func provideMetrics(cfg *config.Config, reg *prometheus.Registry) *metrics.PipelineMetrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New(reg)
}

// provideEmbedder 远程向量化服务外包一层熔断
func provideEmbedder(cfg *config.Config, lc *Lifecycle) (knowledge.Embedder, error) {
	kind, err := knowledge.ParseEmbedderKind(cfg.Embedding.Provider)
	if err != nil {
		return nil, err
	}
	embedder, err := knowledge.NewEmbedder(kind, knowledge.EmbedderOptions{
		Model:         cfg.Embedding.Model,
		Dimensions:    cfg.Embedding.Dimensions,
		BatchSize:     cfg.Embedding.BatchSize,
		OpenAIAPIKey:  cfg.Embedding.OpenAIAPIKey,
		OpenAIBaseURL: cfg.Embedding.OpenAIBaseURL,
		OllamaURL:     cfg.Embedding.OllamaURL,
		CacheDir:      cfg.Embedding.FastEmbedCacheDir,
	})
	if err != nil {
		return nil, err
	}
	if closer, ok := embedder.(io.Closer); ok {
		lc.Append("embedder", closer.Close)
	}

	switch kind {
	case knowledge.EmbedderOpenAI, knowledge.EmbedderOllama:
		return knowledge.NewBreakerEmbedder(embedder, breakerFailureThreshold, breakerCooldown), nil
	default:
		return embedder, nil
	}
}

func provideVectorIndex(cfg *config.Config, fragments *repository.FragmentRepository, embedder knowledge.Embedder, lc *Lifecycle, log *zap.Logger) (knowledge.VectorIndex, error) {
	if cfg.Retrieval.Backend != "milvus" {
		return knowledge.NewStoreIndex(fragments), nil
	}
	index, err := knowledge.NewMilvusIndex(context.Background(), knowledge.MilvusOptions{
		Address:          cfg.Milvus.Address,
		Username:         cfg.Milvus.Username,
		Password:         cfg.Milvus.Password,
		Database:         cfg.Milvus.Database,
		CollectionPrefix: cfg.Milvus.CollectionPrefix,
		Dimensions:       embedder.Dimensions(),
		UseTLS:           cfg.Milvus.UseTLS,
	}, log.Named("milvus"))
	if err != nil {
		return nil, err
	}
	lc.Append("milvus", index.Close)
	return index, nil
}

func provideProcessingLock(cfg *config.Config, client *redis.Client) services.ProcessingLock {
	if client == nil {
		return services.NoopLock{}
	}
	return services.NewRedisProcessingLock(client, cfg.Pipeline.LockTTL)
}

func provideUploadService(
	cfg *config.Config,
	blobs storage.BlobStore,
	documents repository.DocumentStore,
	publisher queue.Publisher,
	m *metrics.PipelineMetrics,
	log *zap.Logger,
) *services.UploadService {
	return services.NewUploadService(blobs, documents, publisher, cfg.Upload, m, log.Named("upload"))
}

func provideOrchestrator(
	cfg *config.Config,
	documents repository.DocumentStore,
	fragments repository.FragmentStore,
	blobs storage.BlobStore,
	index knowledge.VectorIndex,
	embedder knowledge.Embedder,
	lock services.ProcessingLock,
	m *metrics.PipelineMetrics,
	log *zap.Logger,
) (*services.IngestionOrchestrator, error) {
	pipeline, err := services.BuildPipeline(cfg.Pipeline, embedder)
	if err != nil {
		return nil, err
	}
	return services.NewIngestionOrchestrator(documents, fragments, blobs, index, pipeline, lock, m, log.Named("ingestion")), nil
}

func provideRetrievalService(
	cfg *config.Config,
	embedder knowledge.Embedder,
	index knowledge.VectorIndex,
	m *metrics.PipelineMetrics,
	log *zap.Logger,
) *services.RetrievalService {
	return services.NewRetrievalService(embedder, index, cfg.Retrieval, m, log.Named("retrieval"))
}
