package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/rag-ingest/internal/config"
	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/knowledge"
	"github.com/aihub/rag-ingest/internal/models"
)

func TestRetrievalService_FewerFragmentsThanK(t *testing.T) {
	embedder := knowledge.NewHashingEmbedder(64)
	fragments := newMemFragments()
	texts := []string{"our refund policy allows returns within 30 days", "shipping takes five business days"}
	vectors, err := embedder.EmbedMany(context.Background(), texts)
	require.NoError(t, err)
	batch := []models.Fragment{
		withVector(models.Fragment{DocumentID: 1, FragmentIndex: 0, Content: texts[0], EmbeddingModel: embedder.Model()}, vectors[0]),
		withVector(models.Fragment{DocumentID: 1, FragmentIndex: 1, Content: texts[1], EmbeddingModel: embedder.Model()}, vectors[1]),
	}
	require.NoError(t, fragments.ReplaceForDocument(context.Background(), 1, batch))

	service := NewRetrievalService(embedder, knowledge.NewStoreIndex(fragments), config.RetrievalConfig{}, nil, nil)
	results, err := service.Search(context.Background(), "refund policy", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, texts[0], results[0].Fragment.Content)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestRetrievalService_IgnoresOtherModels(t *testing.T) {
	fragments := newMemFragments()
	require.NoError(t, fragments.ReplaceForDocument(context.Background(), 1, []models.Fragment{
		withVector(models.Fragment{DocumentID: 1, Content: "foreign", EmbeddingModel: "openai:text-embedding-3-small"}, []float32{1, 0, 0}),
	}))

	service := NewRetrievalService(knowledge.NewHashingEmbedder(3), knowledge.NewStoreIndex(fragments), config.RetrievalConfig{}, nil, nil)
	results, err := service.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRetrievalService_ClampsK(t *testing.T) {
	index := &recordingIndex{}
	embedder := knowledge.NewHashingEmbedder(8)
	service := NewRetrievalService(embedder, index, config.RetrievalConfig{DefaultK: 5, MaxK: 20}, nil, nil)

	_, err := service.Search(context.Background(), "q", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, index.k)
	assert.Equal(t, embedder.Model(), index.model)

	_, err = service.Search(context.Background(), "q", 100)
	require.NoError(t, err)
	assert.Equal(t, 20, index.k)

	_, err = service.Search(context.Background(), "q", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, index.k)
}

func TestRetrievalService_Errors(t *testing.T) {
	index := &recordingIndex{err: errors.New("relation does not exist")}
	service := NewRetrievalService(knowledge.NewHashingEmbedder(8), index, config.RetrievalConfig{}, nil, nil)

	_, err := service.Search(context.Background(), "   ", 5)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))

	_, err = service.Search(context.Background(), "refunds", 5)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
}
