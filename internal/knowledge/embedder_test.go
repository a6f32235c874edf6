package knowledge

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestHashingEmbedder_Deterministic(t *testing.T) {
	embedder := NewHashingEmbedder(0)
	assert.Equal(t, 384, embedder.Dimensions())
	assert.Equal(t, "hashing:xxhash-384", embedder.Model())

	a, err := embedder.EmbedOne(context.Background(), "The quick brown fox")
	require.NoError(t, err)
	b, err := embedder.EmbedOne(context.Background(), "the QUICK brown fox!")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 384)
	assert.InDelta(t, 1.0, l2(a), 1e-5)
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	vec, err := NewHashingEmbedder(16).EmbedOne(context.Background(), "  ...  ")
	require.NoError(t, err)
	assert.Len(t, vec, 16)
	assert.Equal(t, 0.0, l2(vec))
}

func TestHashingEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	embedder := NewHashingEmbedder(384)
	vectors, err := embedder.EmbedMany(context.Background(), []string{
		"the cat sat on the mat",
		"the cat sat on a mat",
		"quantum chromodynamics lattice simulation",
	})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	near, err := CosineSimilarity(vectors[0], vectors[1])
	require.NoError(t, err)
	far, err := CosineSimilarity(vectors[0], vectors[2])
	require.NoError(t, err)
	assert.Greater(t, near, far)
}

func TestNewEmbedder(t *testing.T) {
	embedder, err := NewEmbedder(EmbedderHashing, EmbedderOptions{Dimensions: 32})
	require.NoError(t, err)
	assert.Equal(t, 32, embedder.Dimensions())

	_, err = NewEmbedder(EmbedderOpenAI, EmbedderOptions{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfig))

	_, err = NewEmbedder(EmbedderKind("bert"), EmbedderOptions{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedMethod))
}

func TestOpenAIEmbedder_Defaults(t *testing.T) {
	embedder, err := NewOpenAIEmbedder(EmbedderOptions{OpenAIAPIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai:text-embedding-3-small", embedder.Model())
	assert.Equal(t, 1536, embedder.Dimensions())
}

func TestParseEmbedderKind(t *testing.T) {
	kind, err := ParseEmbedderKind("")
	require.NoError(t, err)
	assert.Equal(t, EmbedderHashing, kind)

	kind, err = ParseEmbedderKind("Ollama")
	require.NoError(t, err)
	assert.Equal(t, EmbedderOllama, kind)

	_, err = ParseEmbedderKind("word2vec")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedMethod))
}

func TestBatches(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, batches(texts, 2))
	assert.Equal(t, [][]string{texts}, batches(texts, 0))
	assert.Equal(t, [][]string{texts}, batches(texts, 10))
}
