package knowledge

import (
	"context"
	"math"
	"sort"
	"strings"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

const semanticBreakpointPercentile = 95

// SemanticSplitter 相邻句子语义距离超过95分位处断开
type SemanticSplitter struct {
	embedder Embedder
	buffer   int
}

// NewSemanticSplitter 创建语义切分器，每句与前后各一句合并后再向量化
func NewSemanticSplitter(embedder Embedder) *SemanticSplitter {
	return &SemanticSplitter{embedder: embedder, buffer: 1}
}

func (s *SemanticSplitter) Split(ctx context.Context, text string) ([]string, error) {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return sentences, nil
	}

	windows := make([]string, len(sentences))
	for i := range sentences {
		lo := i - s.buffer
		if lo < 0 {
			lo = 0
		}
		hi := i + s.buffer + 1
		if hi > len(sentences) {
			hi = len(sentences)
		}
		windows[i] = strings.Join(sentences[lo:hi], " ")
	}

	vectors, err := s.embedder.EmbedMany(ctx, windows)
	if err != nil {
		return nil, err
	}

	distances := make([]float64, len(vectors)-1)
	for i := 0; i < len(vectors)-1; i++ {
		sim, err := CosineSimilarity(vectors[i], vectors[i+1])
		if err != nil {
			return nil, apperrors.NewEmbeddingError("semantic split got inconsistent vectors").WithCause(err)
		}
		distances[i] = 1 - sim
	}
	threshold := percentile(distances, semanticBreakpointPercentile)

	var chunks []string
	start := 0
	for i, d := range distances {
		if d > threshold {
			chunks = append(chunks, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	chunks = append(chunks, strings.Join(sentences[start:], " "))
	return chunks, nil
}

// percentile 线性插值
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}
