package di

import (
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aihub/rag-ingest/internal/config"
	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/knowledge"
	"github.com/aihub/rag-ingest/internal/metrics"
	"github.com/aihub/rag-ingest/internal/queue"
	"github.com/aihub/rag-ingest/internal/services"
)

func testConfig() *config.Config {
	return &config.Config{
		Log:       config.LogConfig{Level: "info"},
		Queue:     config.QueueConfig{Provider: "kafka"},
		Pipeline:  config.PipelineConfig{Workers: 1},
		Embedding: config.EmbeddingConfig{Provider: "hashing", Dimensions: 64, BatchSize: 8},
		Retrieval: config.RetrievalConfig{DefaultK: 5, MaxK: 50, Backend: "postgres"},
	}
}

func newTestContainer(t *testing.T, cfg *config.Config) (func(interface{}) error, *Lifecycle) {
	t.Helper()
	container, lifecycle, err := NewContainer()
	require.NoError(t, err)
	require.NoError(t, RegisterProviders(container, cfg, zap.NewNop()))
	t.Cleanup(func() { _ = lifecycle.Close(nil) })
	return func(fn interface{}) error { return container.Invoke(fn) }, lifecycle
}

func TestLifecycle_ClosesInReverseOrder(t *testing.T) {
	lc := &Lifecycle{}
	var order []string
	lc.Append("db", func() error { order = append(order, "db"); return nil })
	lc.Append("redis", func() error { order = append(order, "redis"); return errors.New("boom") })
	lc.Append("producer", func() error { order = append(order, "producer"); return nil })

	err := lc.Close(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"producer", "redis", "db"}, order)

	// 第二次关闭不再执行
	require.NoError(t, lc.Close(nil))
	assert.Len(t, order, 3)
}

func TestRegisterProviders_HashingEmbedder(t *testing.T) {
	invoke, _ := newTestContainer(t, testConfig())

	err := invoke(func(e knowledge.Embedder) {
		assert.Equal(t, 64, e.Dimensions())
		assert.Equal(t, "hashing:xxhash-64", e.Model())
	})
	require.NoError(t, err)
}

func TestRegisterProviders_RemoteEmbedderHasBreaker(t *testing.T) {
	cfg := testConfig()
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.OllamaURL = "http://127.0.0.1:11434"
	invoke, _ := newTestContainer(t, cfg)

	err := invoke(func(e knowledge.Embedder) {
		breaker, ok := e.(*knowledge.BreakerEmbedder)
		require.True(t, ok)
		assert.Equal(t, knowledge.BreakerClosed, breaker.State())
	})
	require.NoError(t, err)
}

func TestRegisterProviders_UnknownEmbedder(t *testing.T) {
	cfg := testConfig()
	cfg.Embedding.Provider = "word2vec"
	invoke, _ := newTestContainer(t, cfg)

	err := invoke(func(knowledge.Embedder) {})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedMethod))
}

func TestRegisterProviders_MetricsToggle(t *testing.T) {
	cfg := testConfig()
	invoke, _ := newTestContainer(t, cfg)
	require.NoError(t, invoke(func(m *metrics.PipelineMetrics) {
		assert.Nil(t, m)
	}))

	cfg = testConfig()
	cfg.Metrics.Enabled = true
	invoke, _ = newTestContainer(t, cfg)
	require.NoError(t, invoke(func(m *metrics.PipelineMetrics) {
		assert.NotNil(t, m)
	}))
}

func TestRegisterProviders_LockWithoutRedis(t *testing.T) {
	invoke, _ := newTestContainer(t, testConfig())

	require.NoError(t, invoke(func(lock services.ProcessingLock) {
		assert.IsType(t, services.NoopLock{}, lock)
	}))
}

func TestRegisterProviders_RedisStreamQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Queue.Provider = "redis"
	cfg.Queue.Redis = config.RedisStreamConfig{Stream: "rag:documents", Group: "rag:ingestion", Consumer: "test"}
	cfg.Redis = config.RedisConfig{Host: mr.Host(), Port: mr.Port()}
	invoke, lifecycle := newTestContainer(t, cfg)

	err := invoke(func(p queue.Publisher, c queue.Consumer, lock services.ProcessingLock) {
		stream, ok := p.(*queue.RedisStreamChannel)
		require.True(t, ok)
		assert.Same(t, stream, c)
		assert.IsType(t, &services.RedisProcessingLock{}, lock)
	})
	require.NoError(t, err)
	assert.True(t, mr.Exists("rag:documents"))

	require.NoError(t, lifecycle.Close(nil))
}

func TestQueueFactory_RedisProviderWithoutClient(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.Provider = "redis"
	f := newQueueFactory(cfg, nil, &Lifecycle{}, zap.NewNop())

	_, err := f.Publisher()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfig))
}
