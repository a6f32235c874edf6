package knowledge

import (
	"context"
	"strings"
)

// CharSplitter 固定字符窗口，步长为size-overlap
type CharSplitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewCharSplitter 创建字符切分器
func NewCharSplitter(chunkSize, overlap int) *CharSplitter {
	return &CharSplitter{chunkSize: chunkSize, chunkOverlap: overlap}
}

func (c *CharSplitter) Split(_ context.Context, text string) ([]string, error) {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = c.chunkSize
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}
