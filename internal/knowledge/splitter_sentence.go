package knowledge

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

var sentencePattern = regexp.MustCompile(`[^.!?。！？]+[.!?。！？]+`)

// splitSentences 按句末标点切句。匹配之间的文本(如开头孤立的标点)并入下一句，
// 末尾没有标点的剩余文本也作为一句
func splitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// SentenceSplitter 尽量保持整句，单句超长时按字符窗口硬切
type SentenceSplitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewSentenceSplitter 创建句子切分器
func NewSentenceSplitter(chunkSize, overlap int) *SentenceSplitter {
	return &SentenceSplitter{chunkSize: chunkSize, chunkOverlap: overlap}
}

func (s *SentenceSplitter) Split(ctx context.Context, text string) ([]string, error) {
	var units []string
	for _, sentence := range splitSentences(text) {
		if utf8.RuneCountInString(sentence) <= s.chunkSize {
			units = append(units, sentence)
			continue
		}
		parts, _ := NewCharSplitter(s.chunkSize, 0).Split(ctx, sentence)
		units = append(units, parts...)
	}

	var chunks []string
	var current []string
	length := 0
	for _, unit := range units {
		n := utf8.RuneCountInString(unit)
		if len(current) > 0 && length+1+n > s.chunkSize {
			chunks = append(chunks, strings.Join(current, " "))
			current, length = s.carryOver(current)
			if len(current) > 0 && length+1+n > s.chunkSize {
				current, length = nil, 0
			}
		}
		if len(current) > 0 {
			length++
		}
		current = append(current, unit)
		length += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks, nil
}

// carryOver 保留末尾总长不超过overlap的句子
func (s *SentenceSplitter) carryOver(sentences []string) ([]string, int) {
	if s.chunkOverlap == 0 {
		return nil, 0
	}
	length := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(sentences[i])
		if start < len(sentences) {
			n++
		}
		if length+n > s.chunkOverlap {
			break
		}
		length += n
		start = i
	}
	return append([]string(nil), sentences[start:]...), length
}
