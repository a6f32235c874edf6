package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/models"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestDocumentRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	path := "abc.pdf"
	doc := &models.Document{
		Title:           "report.pdf",
		Type:            models.DocumentTypePDF,
		Status:          models.DocumentStatusPending,
		Path:            &path,
		Size:            42,
		CreatedBy:       1,
		EmbeddingStatus: models.EmbeddingStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), doc))
	assert.Equal(t, uint(7), doc.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "type", "status", "path", "size", "created_by"}).
		AddRow(3, "notes.txt", "txt", "pending", "k.txt", 10, 1)
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE "documents"."id" = \$1`).WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Title)
	assert.Equal(t, "k.txt", doc.BlobKey())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "documents"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), 99)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeResourceNotFound))
}

func TestDocumentRepository_GetByID_DatabaseError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "documents"`).WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByID(context.Background(), 1)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
}

func TestDocumentRepository_MarkTerminal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "documents" SET .* WHERE \(id = \$\d+ AND status = \$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	changed, err := repo.MarkTerminal(context.Background(), 5, models.DocumentStatusDone, TerminalUpdate{
		VectorCount:     3,
		EmbeddingStatus: models.EmbeddingStatusDone,
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepository_MarkTerminal_AlreadyTerminal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDocumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "documents"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	changed, err := repo.MarkTerminal(context.Background(), 5, models.DocumentStatusFailed, TerminalUpdate{})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestDocumentRepository_MarkTerminal_RejectsPending(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewDocumentRepository(db)

	_, err := repo.MarkTerminal(context.Background(), 5, models.DocumentStatusPending, TerminalUpdate{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
}

func TestFragmentRepository_ReplaceForDocument(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFragmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "fragments" WHERE document_id = \$1`).
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`INSERT INTO "fragments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10).AddRow(11))
	mock.ExpectCommit()

	fragments := []models.Fragment{
		{DocumentID: 4, FragmentIndex: 0, Content: "alpha", ChunkSize: 500},
		{DocumentID: 4, FragmentIndex: 1, Content: "beta", ChunkSize: 500},
	}
	require.NoError(t, repo.ReplaceForDocument(context.Background(), 4, fragments))
	assert.Equal(t, uint(10), fragments[0].ID)
	assert.Equal(t, uint(11), fragments[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFragmentRepository_ReplaceForDocument_RollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFragmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "fragments"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`INSERT INTO "fragments"`).WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := repo.ReplaceForDocument(context.Background(), 4, []models.Fragment{{DocumentID: 4, Content: "x", ChunkSize: 1}})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFragmentRepository_SearchSimilar(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFragmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "document_id", "fragment_index", "content", "chunk_size", "embedding_model", "created_by", "created_at", "distance"}).
		AddRow(3, 2, 1, "closest", 500, "hashing:xxhash-384", 1, time.Now(), 0.1).
		AddRow(1, 2, 0, "tied", 500, "hashing:xxhash-384", 1, time.Now(), 0.5).
		AddRow(4, 5, 0, "tied later id", 500, "hashing:xxhash-384", 1, time.Now(), 0.5)
	mock.ExpectQuery(`SELECT .* AS distance FROM fragments WHERE vector IS NOT NULL AND embedding_model = \$2 ORDER BY distance ASC, id ASC LIMIT \$3`).
		WithArgs("[0.5,0.25]", "hashing:xxhash-384", 3).
		WillReturnRows(rows)

	scored, err := repo.SearchSimilar(context.Background(), "hashing:xxhash-384", []float32{0.5, 0.25}, 3)
	require.NoError(t, err)
	require.Len(t, scored, 3)
	assert.Equal(t, uint(3), scored[0].Fragment.ID)
	assert.InDelta(t, 0.9, scored[0].Score, 1e-9)
	assert.Equal(t, "closest", scored[0].Fragment.Content)
	assert.Equal(t, uint(1), scored[1].Fragment.ID)
	assert.Equal(t, uint(4), scored[2].Fragment.ID)
	assert.InDelta(t, 0.5, scored[2].Score, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFragmentRepository_SearchSimilar_NoQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFragmentRepository(db)

	scored, err := repo.SearchSimilar(context.Background(), "hashing:xxhash-384", []float32{1}, 0)
	require.NoError(t, err)
	assert.NotNil(t, scored)
	assert.Empty(t, scored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFragmentRepository_SearchSimilar_Error(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFragmentRepository(db)

	mock.ExpectQuery(`AS distance`).WillReturnError(errors.New("operator does not exist: vector <=> vector"))

	_, err := repo.SearchSimilar(context.Background(), "m", []float32{1, 0}, 5)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
}

func TestFragmentRepository_CountByDocument(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFragmentRepository(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "fragments" WHERE document_id = \$1`).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountByDocument(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
