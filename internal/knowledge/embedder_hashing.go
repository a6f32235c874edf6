package knowledge

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const defaultHashingDimensions = 384

// HashingEmbedder 词和相邻词对的特征哈希，L2归一化，无外部依赖且结果确定
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder 默认384维
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = defaultHashingDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

func (e *HashingEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.vector(text)
	}
	return vectors, nil
}

func (e *HashingEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *HashingEmbedder) Model() string {
	return modelID(EmbedderHashing, fmt.Sprintf("xxhash-%d", e.dimensions))
}

func (e *HashingEmbedder) vector(text string) []float32 {
	vec := make([]float64, e.dimensions)
	tokens := tokenize(text)
	for i, token := range tokens {
		e.add(vec, token, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+token, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, e.dimensions)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (e *HashingEmbedder) add(vec []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(e.dimensions)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
