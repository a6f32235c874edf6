package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/stretchr/testify/mock"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/knowledge"
	"github.com/aihub/rag-ingest/internal/models"
	"github.com/aihub/rag-ingest/internal/queue"
	"github.com/aihub/rag-ingest/internal/repository"
)

type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	puts    int
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string][]byte)}
}

func (m *memBlobStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memBlobStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, apperrors.NewNotFoundError("object " + key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobStore) DownloadToFile(_ context.Context, key, path string) error {
	m.mu.Lock()
	data, ok := m.objects[key]
	m.mu.Unlock()
	if !ok {
		return apperrors.NewNotFoundError("object " + key)
	}
	return os.WriteFile(path, data, 0o600)
}

func (m *memBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memBlobStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

// gatedBlobStore 下载在gate关闭前阻塞，之后像minio客户端一样检查ctx
type gatedBlobStore struct {
	*memBlobStore
	started chan struct{}
	gate    chan struct{}
}

func (g *gatedBlobStore) DownloadToFile(ctx context.Context, key, path string) error {
	close(g.started)
	<-g.gate
	if err := ctx.Err(); err != nil {
		return apperrors.NewStorageError("download interrupted").WithCause(err)
	}
	return g.memBlobStore.DownloadToFile(ctx, key, path)
}

type memDocuments struct {
	mu        sync.Mutex
	docs      map[uint]*models.Document
	nextID    uint
	createErr error
	markErr   error
}

func newMemDocuments() *memDocuments {
	return &memDocuments{docs: make(map[uint]*models.Document)}
}

func (m *memDocuments) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	doc.ID = m.nextID
	stored := *doc
	m.docs[doc.ID] = &stored
	return nil
}

func (m *memDocuments) GetByID(_ context.Context, id uint) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("document %d", id))
	}
	copied := *doc
	return &copied, nil
}

func (m *memDocuments) MarkTerminal(_ context.Context, id uint, status string, update repository.TerminalUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return false, m.markErr
	}
	doc, ok := m.docs[id]
	if !ok || doc.Status != models.DocumentStatusPending {
		return false, nil
	}
	doc.Status = status
	doc.VectorCount = update.VectorCount
	doc.EmbeddingStatus = update.EmbeddingStatus
	return true, nil
}

func (m *memDocuments) put(doc models.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID > m.nextID {
		m.nextID = doc.ID
	}
	m.docs[doc.ID] = &doc
}

func (m *memDocuments) status(id uint) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.docs[id]; ok {
		return doc.Status
	}
	return ""
}

type memFragments struct {
	mu         sync.Mutex
	byDoc      map[uint][]models.Fragment
	nextID     uint
	replaceErr error
	replaces   int
}

func newMemFragments() *memFragments {
	return &memFragments{byDoc: make(map[uint][]models.Fragment)}
}

func (m *memFragments) ReplaceForDocument(_ context.Context, documentID uint, fragments []models.Fragment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaces++
	if m.replaceErr != nil {
		return m.replaceErr
	}
	for i := range fragments {
		m.nextID++
		fragments[i].ID = m.nextID
	}
	m.byDoc[documentID] = append([]models.Fragment(nil), fragments...)
	return nil
}

func (m *memFragments) ListByDocument(_ context.Context, documentID uint) ([]models.Fragment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Fragment(nil), m.byDoc[documentID]...), nil
}

func (m *memFragments) SearchSimilar(_ context.Context, embeddingModel string, query []float32, k int) ([]models.ScoredFragment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ScoredFragment{}
	for _, fragments := range m.byDoc {
		for _, fragment := range fragments {
			if !fragment.HasVector() || fragment.EmbeddingModel != embeddingModel {
				continue
			}
			score, err := knowledge.CosineSimilarity(query, fragment.Embedding())
			if err != nil {
				return nil, err
			}
			out = append(out, models.ScoredFragment{Fragment: fragment, Score: score})
		}
	}
	knowledge.SortScored(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (m *memFragments) CountByDocument(_ context.Context, documentID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.byDoc[documentID])), nil
}

// MockPublisher 模拟事件发布
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event queue.DocumentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return nil
}

type fakeDelivery struct {
	body     []byte
	acked    bool
	rejected bool
	reason   string
	onSettle func()
}

func (d *fakeDelivery) Body() []byte { return d.body }

func (d *fakeDelivery) Ack(context.Context) error {
	if d.onSettle != nil {
		d.onSettle()
	}
	d.acked = true
	return nil
}

func (d *fakeDelivery) Reject(_ context.Context, reason string) error {
	if d.onSettle != nil {
		d.onSettle()
	}
	d.rejected = true
	d.reason = reason
	return nil
}

type recordingIndex struct {
	indexed []models.Fragment
	k       int
	model   string
	results []knowledge.ScoredFragment
	err     error
}

func (r *recordingIndex) Index(_ context.Context, fragments []models.Fragment) error {
	r.indexed = append(r.indexed, fragments...)
	return r.err
}

func (r *recordingIndex) Search(_ context.Context, embeddingModel string, _ []float32, k int) ([]knowledge.ScoredFragment, error) {
	r.model = embeddingModel
	r.k = k
	return r.results, r.err
}

func (r *recordingIndex) Name() string { return "recording" }

type stubLock struct {
	acquired bool
	err      error
	released int
}

func (s *stubLock) Acquire(context.Context, uint) (string, bool, error) {
	if s.err != nil || !s.acquired {
		return "", false, s.err
	}
	return "stub-token", true, nil
}

func (s *stubLock) Release(_ context.Context, _ uint, token string) error {
	if token == "stub-token" {
		s.released++
	}
	return nil
}

func withVector(fragment models.Fragment, vector []float32) models.Fragment {
	fragment.SetEmbedding(vector)
	return fragment
}

func repositoryUpdate(vectors int) repository.TerminalUpdate {
	return repository.TerminalUpdate{VectorCount: vectors, EmbeddingStatus: models.EmbeddingStatusDone}
}
