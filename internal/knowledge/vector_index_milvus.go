package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/models"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address          string
	Username         string
	Password         string
	Database         string
	CollectionPrefix string
	Dimensions       int
	UseTLS           bool
	Timeout          time.Duration
}

// MilvusIndex 每个向量模型一个collection，COSINE度量
type MilvusIndex struct {
	client     client.Client
	prefix     string
	dimensions int
	logger     *zap.Logger

	mu    sync.Mutex
	ready map[string]bool
}

// NewMilvusIndex 连接Milvus
func NewMilvusIndex(ctx context.Context, opts MilvusOptions, logger *zap.Logger) (*MilvusIndex, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	milvusClient, err := client.NewClient(connectCtx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to connect to milvus").WithCause(err)
	}
	return newMilvusIndex(milvusClient, opts, logger), nil
}

func newMilvusIndex(milvusClient client.Client, opts MilvusOptions, logger *zap.Logger) *MilvusIndex {
	if opts.CollectionPrefix == "" {
		opts.CollectionPrefix = "fragments"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MilvusIndex{
		client:     milvusClient,
		prefix:     opts.CollectionPrefix,
		dimensions: opts.Dimensions,
		logger:     logger,
		ready:      make(map[string]bool),
	}
}

func (m *MilvusIndex) Name() string {
	return "milvus"
}

// collectionName collection名只允许字母数字和下划线
func (m *MilvusIndex) collectionName(embeddingModel string) string {
	var b strings.Builder
	b.WriteString(m.prefix)
	b.WriteByte('_')
	for _, r := range strings.ToLower(embeddingModel) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (m *MilvusIndex) ensureCollection(ctx context.Context, name string, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready[name] {
		return nil
	}

	exists, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return apperrors.NewDatabaseError("failed to check milvus collection").WithCause(err)
	}
	if !exists {
		schema := &entity.Schema{
			CollectionName: name,
			Description:    "document fragment vectors",
			Fields: []*entity.Field{
				{Name: "id", DataType: entity.FieldTypeInt64, PrimaryKey: true},
				{Name: "document_id", DataType: entity.FieldTypeInt64},
				{Name: "fragment_index", DataType: entity.FieldTypeInt64},
				{Name: "content", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
				{Name: "vector", DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dim)}},
			},
		}
		if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return apperrors.NewDatabaseError("failed to create milvus collection").WithCause(err)
		}

		index, err := entity.NewIndexHNSW(entity.COSINE, 8, 64)
		if err != nil {
			return apperrors.NewDatabaseError("failed to build milvus index params").WithCause(err)
		}
		if err := m.client.CreateIndex(ctx, name, "vector", index, false); err != nil {
			m.logger.Warn("failed to create milvus index", zap.String("collection", name), zap.Error(err))
		}
	}

	if err := m.client.LoadCollection(ctx, name, false); err != nil {
		return apperrors.NewDatabaseError("failed to load milvus collection").WithCause(err)
	}
	m.ready[name] = true
	return nil
}

// documentFilter 删除文档旧向量的过滤表达式，ID升序去重
func documentFilter(fragments []models.Fragment) string {
	seen := make(map[uint]bool)
	ids := make([]uint, 0, 1)
	for _, fragment := range fragments {
		if !seen[fragment.DocumentID] {
			seen[fragment.DocumentID] = true
			ids = append(ids, fragment.DocumentID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return "document_id in [" + strings.Join(parts, ",") + "]"
}

// Index 按模型分组写入，写入前删除同一文档上一次的向量
func (m *MilvusIndex) Index(ctx context.Context, fragments []models.Fragment) error {
	groups := make(map[string][]models.Fragment)
	for _, fragment := range fragments {
		if !fragment.HasVector() {
			continue
		}
		groups[fragment.EmbeddingModel] = append(groups[fragment.EmbeddingModel], fragment)
	}

	for model, group := range groups {
		dim := len(group[0].Embedding())
		name := m.collectionName(model)
		if err := m.ensureCollection(ctx, name, dim); err != nil {
			return err
		}
		if err := m.client.Delete(ctx, name, "", documentFilter(group)); err != nil {
			return apperrors.NewDatabaseError("milvus delete of stale vectors failed").WithCause(err)
		}

		ids := make([]int64, len(group))
		documentIDs := make([]int64, len(group))
		indexes := make([]int64, len(group))
		contents := make([]string, len(group))
		vectors := make([][]float32, len(group))
		for i, fragment := range group {
			vector := fragment.Embedding()
			if len(vector) != dim {
				return apperrors.NewValidationError(fmt.Sprintf("fragment %d has %d dimensions, expected %d", fragment.ID, len(vector), dim))
			}
			ids[i] = int64(fragment.ID)
			documentIDs[i] = int64(fragment.DocumentID)
			indexes[i] = int64(fragment.FragmentIndex)
			contents[i] = fragment.Content
			vectors[i] = vector
		}

		_, err := m.client.Insert(ctx, name, "",
			entity.NewColumnInt64("id", ids),
			entity.NewColumnInt64("document_id", documentIDs),
			entity.NewColumnInt64("fragment_index", indexes),
			entity.NewColumnVarChar("content", contents),
			entity.NewColumnFloatVector("vector", dim, vectors),
		)
		if err != nil {
			return apperrors.NewDatabaseError("milvus insert failed").WithCause(err)
		}
		if err := m.client.Flush(ctx, name, false); err != nil {
			m.logger.Warn("failed to flush milvus collection", zap.String("collection", name), zap.Error(err))
		}
	}
	return nil
}

// Search collection不存在时返回空结果
func (m *MilvusIndex) Search(ctx context.Context, embeddingModel string, query []float32, k int) ([]ScoredFragment, error) {
	if len(query) == 0 || k <= 0 {
		return []ScoredFragment{}, nil
	}
	name := m.collectionName(embeddingModel)
	exists, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to check milvus collection").WithCause(err)
	}
	if !exists {
		return []ScoredFragment{}, nil
	}
	if err := m.ensureCollection(ctx, name, len(query)); err != nil {
		return nil, err
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	results, err := m.client.Search(
		ctx,
		name,
		[]string{},
		"",
		[]string{"document_id", "fragment_index", "content"},
		[]entity.Vector{entity.FloatVector(query)},
		"vector",
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		return nil, apperrors.NewDatabaseError("milvus search failed").WithCause(err)
	}
	if len(results) == 0 {
		return []ScoredFragment{}, nil
	}
	if results[0].Err != nil {
		return nil, apperrors.NewDatabaseError("milvus search failed").WithCause(results[0].Err)
	}

	scored := scoredFromResult(results[0], embeddingModel)
	SortScored(scored)
	return scored, nil
}

func scoredFromResult(result client.SearchResult, embeddingModel string) []ScoredFragment {
	var ids, documentIDs, indexes []int64
	var contents []string

	if col, ok := result.IDs.(*entity.ColumnInt64); ok {
		ids = col.Data()
	}
	for _, field := range result.Fields {
		switch field.Name() {
		case "document_id":
			if col, ok := field.(*entity.ColumnInt64); ok {
				documentIDs = col.Data()
			}
		case "fragment_index":
			if col, ok := field.(*entity.ColumnInt64); ok {
				indexes = col.Data()
			}
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		}
	}

	scored := make([]ScoredFragment, 0, result.ResultCount)
	for i := 0; i < result.ResultCount && i < len(ids); i++ {
		fragment := models.Fragment{ID: uint(ids[i]), EmbeddingModel: embeddingModel}
		if i < len(documentIDs) {
			fragment.DocumentID = uint(documentIDs[i])
		}
		if i < len(indexes) {
			fragment.FragmentIndex = int(indexes[i])
		}
		if i < len(contents) {
			fragment.Content = contents[i]
		}
		var score float64
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		scored = append(scored, ScoredFragment{Fragment: fragment, Score: score})
	}
	return scored
}

// HealthCheck 列出collection验证连接可用
func (m *MilvusIndex) HealthCheck(ctx context.Context) error {
	if m.client == nil {
		return apperrors.NewDatabaseError("milvus client not connected")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := m.client.ListCollections(ctx); err != nil {
		return apperrors.NewDatabaseError("milvus unreachable").WithCause(err)
	}
	return nil
}

// Close 关闭连接
func (m *MilvusIndex) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
