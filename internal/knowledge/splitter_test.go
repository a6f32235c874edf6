package knowledge

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

func TestCharSplitter_FixedWindows(t *testing.T) {
	text := strings.Repeat("abcdefghij", 120)
	splitter, err := NewSplitter(SplitterChar, SplitterOptions{ChunkSize: 500, ChunkOverlap: 50})
	require.NoError(t, err)

	chunks, err := splitter.Split(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[1], 500)
	assert.Len(t, chunks[2], 300)
	assert.Equal(t, chunks[0][450:], chunks[1][:50])
	assert.Equal(t, chunks[1][450:], chunks[2][:50])
}

func TestCharSplitter_Edges(t *testing.T) {
	splitter := NewCharSplitter(10, 0)

	chunks, err := splitter.Split(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = splitter.Split(context.Background(), "short")
	require.NoError(t, err)
	assert.Equal(t, []string{"short"}, chunks)

	chunks, err = splitter.Split(context.Background(), "héllo wörld ñandú")
	require.NoError(t, err)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk))
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 10)
	}
}

func TestSplitterOptions_Validate(t *testing.T) {
	cases := []SplitterOptions{
		{ChunkSize: 0},
		{ChunkSize: 100, ChunkOverlap: -1},
		{ChunkSize: 100, ChunkOverlap: 100},
	}
	for _, opts := range cases {
		_, err := NewSplitter(SplitterChar, opts)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed), "%+v", opts)
	}

	_, err := NewSplitter(SplitterSemantic, SplitterOptions{ChunkSize: 100})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfig))

	_, err = NewSplitter(SplitterKind("paragraph"), SplitterOptions{ChunkSize: 100})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedMethod))
}

func TestParseSplitterKind(t *testing.T) {
	kind, err := ParseSplitterKind("")
	require.NoError(t, err)
	assert.Equal(t, SplitterChar, kind)

	kind, err = ParseSplitterKind(" Recursive ")
	require.NoError(t, err)
	assert.Equal(t, SplitterRecursive, kind)

	_, err = ParseSplitterKind("markdown")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedMethod))
}

func TestSentenceSplitter(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine ten."

	chunks, err := NewSentenceSplitter(40, 0).Split(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, []string{"One two three. Four five six.", "Seven eight nine ten."}, chunks)

	chunks, err = NewSentenceSplitter(40, 15).Split(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, []string{"One two three. Four five six.", "Four five six. Seven eight nine ten."}, chunks)
}

func TestSentenceSplitter_LongSentenceAndRemainder(t *testing.T) {
	long := strings.Repeat("x", 25) + "."
	chunks, err := NewSentenceSplitter(10, 0).Split(context.Background(), long+" tail without stop")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 10)
	}
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1], "stop"))
}

func TestRecursiveSplitter_ShortText(t *testing.T) {
	chunks, err := NewRecursiveSplitter(100, 10).Split(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello world"}, chunks)

	chunks, err = NewRecursiveSplitter(100, 10).Split(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSemanticSplitter_KeepsSentenceOrder(t *testing.T) {
	text := "Cats purr softly. Cats nap in the sun. Kittens chase yarn. " +
		"Rockets burn fuel. Orbits need velocity. Satellites circle the earth."
	splitter, err := NewSplitter(SplitterSemantic, SplitterOptions{
		ChunkSize: 100,
		Embedder:  NewHashingEmbedder(64),
	})
	require.NoError(t, err)

	chunks, err := splitter.Split(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, strings.Join(splitSentences(text), " "), strings.Join(chunks, " "))

	single, err := splitter.Split(context.Background(), "Only one sentence here.")
	require.NoError(t, err)
	assert.Equal(t, []string{"Only one sentence here."}, single)
}

func TestPercentile(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}
	assert.InDelta(t, 3.0, percentile(values, 50), 1e-9)
	assert.InDelta(t, 4.8, percentile(values, 95), 1e-9)
	assert.Equal(t, 0.0, percentile(nil, 95))
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, values)
}

func TestSplitSentences_KeepsLeadingPunctuation(t *testing.T) {
	assert.Equal(t, []string{"... and so it began.", "The end."}, splitSentences("... and so it began. The end."))
	assert.Equal(t, []string{"?! Why.", "Because."}, splitSentences("?! Why. Because."))
	assert.Equal(t, []string{"..."}, splitSentences("..."))
	assert.Empty(t, splitSentences("   "))
}

func TestSentenceSplitter_LeadingPunctuation(t *testing.T) {
	chunks, err := NewSentenceSplitter(100, 0).Split(context.Background(), "... and so it began. The end.")
	require.NoError(t, err)
	assert.Equal(t, []string{"... and so it began. The end."}, chunks)
}

func TestSemanticSplitter_LeadingPunctuation(t *testing.T) {
	chunks, err := NewSemanticSplitter(NewHashingEmbedder(16)).Split(context.Background(), "?! Why. Because.")
	require.NoError(t, err)
	assert.Equal(t, "?! Why. Because.", strings.Join(chunks, " "))
}

type ragged struct{ Embedder }

func (ragged) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, i+1)
		out[i][0] = 1
	}
	return out, nil
}

func TestSemanticSplitter_RejectsInconsistentVectors(t *testing.T) {
	_, err := NewSemanticSplitter(ragged{}).Split(context.Background(), "One. Two. Three.")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEmbeddingFailed))
}

func TestTokenSplitter(t *testing.T) {
	splitter := NewTokenSplitter(8, 2, "")

	chunks, err := splitter.Split(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	text := "Refunds are accepted within thirty days of purchase when the receipt is kept."
	chunks, err = splitter.Split(context.Background(), text)
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	require.Greater(t, len(chunks), 1)
	assert.True(t, isSubsequence(compact(text), compact(strings.Join(chunks, ""))))

	exact, err := NewTokenSplitter(8, 0, "").Split(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, text, strings.Join(exact, ""))
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// isSubsequence needle的每个字符按顺序出现在haystack中
func isSubsequence(needle, haystack string) bool {
	rest := []rune(haystack)
	for _, r := range needle {
		i := 0
		for i < len(rest) && rest[i] != r {
			i++
		}
		if i == len(rest) {
			return false
		}
		rest = rest[i+1:]
	}
	return true
}

func TestSplitters_CoverInput(t *testing.T) {
	text := "... it began quietly. Cats purr softly in the warm sun! Do kittens chase yarn?\n\n" +
		"Rockets burn fuel to climb. Orbits need velocity. Satellites circle the earth, al fin."

	kinds := []SplitterKind{SplitterChar, SplitterToken, SplitterRecursive, SplitterSentence, SplitterSemantic}
	for _, kind := range kinds {
		for _, overlap := range []int{0, 20} {
			t.Run(fmt.Sprintf("%s/overlap=%d", kind, overlap), func(t *testing.T) {
				splitter, err := NewSplitter(kind, SplitterOptions{
					ChunkSize:    120,
					ChunkOverlap: overlap,
					Embedder:     NewHashingEmbedder(32),
				})
				require.NoError(t, err)

				chunks, err := splitter.Split(context.Background(), text)
				if err != nil && kind == SplitterToken {
					t.Skipf("tiktoken encoding unavailable: %v", err)
				}
				require.NoError(t, err)
				require.NotEmpty(t, chunks)
				for i, chunk := range chunks {
					assert.NotEmpty(t, strings.TrimSpace(chunk), "chunk %d", i)
				}

				joined := compact(strings.Join(chunks, ""))
				if overlap == 0 {
					assert.Equal(t, compact(text), joined)
				} else {
					assert.True(t, isSubsequence(compact(text), joined), "chunks %q", chunks)
				}
			})
		}
	}
}
