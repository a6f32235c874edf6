package knowledge

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
)

// CleanerKind 文本清洗策略
type CleanerKind string

const (
	CleanerBasic CleanerKind = "basic"
	// CleanerNormalize 在basic基础上做NFKC归一化并去掉控制字符
	CleanerNormalize CleanerKind = "normalize"
)

// ParseCleanerKind 解析清洗策略名称
func ParseCleanerKind(name string) (CleanerKind, error) {
	switch kind := CleanerKind(strings.ToLower(strings.TrimSpace(name))); kind {
	case CleanerBasic, CleanerNormalize:
		return kind, nil
	case "":
		return CleanerBasic, nil
	default:
		return "", apperrors.NewUnsupportedMethodError("cleaner", name)
	}
}

// Cleaner 文本清洗
type Cleaner interface {
	Clean(text string) string
}

// NewCleaner 创建清洗器
func NewCleaner(kind CleanerKind) Cleaner {
	switch kind {
	case CleanerNormalize:
		return normalizeCleaner{}
	default:
		return basicCleaner{}
	}
}

type basicCleaner struct{}

// Clean 连续空白折叠为单个空格
func (basicCleaner) Clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

type normalizeCleaner struct{}

func (normalizeCleaner) Clean(text string) string {
	text = norm.NFKC.String(text)
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return basicCleaner{}.Clean(text)
}
