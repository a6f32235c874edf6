package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Fragment 文档切分后的文本片段及其向量
type Fragment struct {
	ID             uint             `gorm:"primaryKey;column:id" json:"id"`
	DocumentID     uint             `gorm:"column:document_id;not null;uniqueIndex:idx_fragments_document_index" json:"document_id"`
	FragmentIndex  int              `gorm:"column:fragment_index;not null;uniqueIndex:idx_fragments_document_index" json:"fragment_index"`
	Content        string           `gorm:"column:content;type:text;not null" json:"content"`
	ChunkSize      int              `gorm:"column:chunk_size;not null" json:"chunk_size"`
	Vector         *pgvector.Vector `gorm:"column:vector;type:vector" json:"-"`
	EmbeddingModel string           `gorm:"column:embedding_model;size:100;index" json:"embedding_model"`
	CreatedBy      uint             `gorm:"column:created_by;not null" json:"created_by"`
	CreatedAt      time.Time        `gorm:"column:created_at" json:"created_at"`
}

func (Fragment) TableName() string {
	return "fragments"
}

// HasVector 只有带向量的片段参与相似度检索
func (f *Fragment) HasVector() bool {
	return f.Vector != nil && len(f.Vector.Slice()) > 0
}

// Embedding 返回向量分量，没有向量时为nil
func (f *Fragment) Embedding() []float32 {
	if f.Vector == nil {
		return nil
	}
	return f.Vector.Slice()
}

// SetEmbedding 设置向量，空切片清除向量
func (f *Fragment) SetEmbedding(values []float32) {
	if len(values) == 0 {
		f.Vector = nil
		return
	}
	v := pgvector.NewVector(values)
	f.Vector = &v
}

// ScoredFragment 带相似度分数的片段
type ScoredFragment struct {
	Fragment Fragment
	Score    float64
}
