package services

import (
	"github.com/aihub/rag-ingest/internal/config"
	"github.com/aihub/rag-ingest/internal/knowledge"
)

// Pipeline 一次摄取使用的阶段实现
type Pipeline struct {
	Readers  *knowledge.ReaderRegistry
	Cleaner  knowledge.Cleaner
	Splitter knowledge.Splitter
	// Embedder 为nil时跳过向量化
	Embedder  knowledge.Embedder
	ChunkSize int
	TempDir   string
}

// BuildPipeline 解析配置中的策略名称，未知名称返回UnsupportedMethod
func BuildPipeline(cfg config.PipelineConfig, embedder knowledge.Embedder) (Pipeline, error) {
	readerKinds, err := knowledge.ParseReaderKinds(cfg.Readers)
	if err != nil {
		return Pipeline{}, err
	}
	cleanerKind, err := knowledge.ParseCleanerKind(cfg.Cleaner)
	if err != nil {
		return Pipeline{}, err
	}
	splitterKind, err := knowledge.ParseSplitterKind(cfg.Splitter)
	if err != nil {
		return Pipeline{}, err
	}
	splitter, err := knowledge.NewSplitter(splitterKind, knowledge.SplitterOptions{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		Embedder:     embedder,
	})
	if err != nil {
		return Pipeline{}, err
	}

	pipeline := Pipeline{
		Readers:   knowledge.NewReaderRegistry(readerKinds, knowledge.ReaderOptions{OCRLanguage: cfg.OCRLanguage}),
		Cleaner:   knowledge.NewCleaner(cleanerKind),
		Splitter:  splitter,
		ChunkSize: cfg.ChunkSize,
		TempDir:   cfg.TempDir,
	}
	if cfg.EmbeddingEnabled {
		pipeline.Embedder = embedder
	}
	return pipeline, nil
}
