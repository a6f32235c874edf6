package knowledge

import (
	"fmt"
	"math"
	"sort"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/models"
)

// ScoredFragment 带相似度分数的片段
type ScoredFragment = models.ScoredFragment

// CosineSimilarity 1 - cosine_distance，任一向量为零向量时返回0
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, apperrors.NewValidationError(fmt.Sprintf("vector dimensions differ: %d vs %d", len(a), len(b)))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// SortScored 分数相同时按片段ID升序
func SortScored(scored []ScoredFragment) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Fragment.ID < scored[j].Fragment.ID
	})
}
