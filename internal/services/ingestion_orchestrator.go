package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/aihub/rag-ingest/internal/errors"
	"github.com/aihub/rag-ingest/internal/knowledge"
	"github.com/aihub/rag-ingest/internal/metrics"
	"github.com/aihub/rag-ingest/internal/models"
	"github.com/aihub/rag-ingest/internal/queue"
	"github.com/aihub/rag-ingest/internal/repository"
	"github.com/aihub/rag-ingest/internal/storage"
)

// Stage 摄取阶段
type Stage string

const (
	StageReceived   Stage = "received"
	StageDownloaded Stage = "downloaded"
	StageExtracted  Stage = "extracted"
	StageCleaned    Stage = "cleaned"
	StageSplit      Stage = "split"
	StageEmbedded   Stage = "embedded"
	StagePersisted  Stage = "persisted"
	StageAcked      Stage = "acked"
	StageFailed     Stage = "failed"
)

// Outcome 一次摄取的结果。Err非空时Stage为失败前最后完成的阶段
type Outcome struct {
	DocumentID uint
	Stage      Stage
	Status     string
	Reader     knowledge.ReaderKind
	Fragments  int
	Skipped    bool
	Err        error

	loaded bool
}

// Failed 是否失败
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// IngestionOrchestrator 消费文档事件，串行执行 下载→提取→清洗→切分→向量化→入库
type IngestionOrchestrator struct {
	documents repository.DocumentStore
	fragments repository.FragmentStore
	blobs     storage.BlobStore
	index     knowledge.VectorIndex
	pipeline  Pipeline
	lock      ProcessingLock
	states    *DocumentStateMachine
	metrics   *metrics.PipelineMetrics
	logger    *zap.Logger
}

// NewIngestionOrchestrator 创建编排器，index和lock可为nil
func NewIngestionOrchestrator(
	documents repository.DocumentStore,
	fragments repository.FragmentStore,
	blobs storage.BlobStore,
	index knowledge.VectorIndex,
	pipeline Pipeline,
	lock ProcessingLock,
	m *metrics.PipelineMetrics,
	logger *zap.Logger,
) *IngestionOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lock == nil {
		lock = NoopLock{}
	}
	return &IngestionOrchestrator{
		documents: documents,
		fragments: fragments,
		blobs:     blobs,
		index:     index,
		pipeline:  pipeline,
		lock:      lock,
		states:    NewDocumentStateMachine(documents, logger),
		metrics:   m,
		logger:    logger,
	}
}

// HandleDelivery 作为queue.Handler使用：成功确认，任何失败拒绝且不重新入队；确认前先写入终态
func (o *IngestionOrchestrator) HandleDelivery(ctx context.Context, delivery queue.Delivery) {
	event, err := queue.DecodeEvent(delivery.Body())
	if err != nil {
		o.logger.Warn("rejecting undecodable event", zap.Error(err))
		if rejectErr := delivery.Reject(ctx, err.Error()); rejectErr != nil {
			o.logger.Error("reject failed", zap.Error(rejectErr))
		}
		return
	}
	o.handle(ctx, event.DocumentID, delivery)
}

// Process 不经消息通道直接处理一个文档
func (o *IngestionOrchestrator) Process(ctx context.Context, documentID uint) Outcome {
	return o.handle(ctx, documentID, nil)
}

func (o *IngestionOrchestrator) handle(ctx context.Context, documentID uint, delivery queue.Delivery) Outcome {
	log := o.logger.With(zap.Uint("document_id", documentID))

	token, acquired, err := o.lock.Acquire(ctx, documentID)
	if err != nil {
		log.Warn("processing lock unavailable, continuing without it", zap.Error(err))
	} else if !acquired {
		log.Info("document is being processed elsewhere, acking duplicate event")
		o.ack(ctx, delivery, log)
		return Outcome{DocumentID: documentID, Skipped: true, Stage: StageAcked}
	} else {
		defer func() {
			if err := o.lock.Release(context.WithoutCancel(ctx), documentID, token); err != nil {
				log.Warn("failed to release processing lock", zap.Error(err))
			}
		}()
	}

	outcome := o.run(ctx, documentID, log)
	switch {
	case outcome.Skipped:
		log.Info("document already terminal, acking without reprocessing", zap.String("status", outcome.Status))
		o.ack(ctx, delivery, log)
		outcome.Stage = StageAcked

	case outcome.Failed():
		log.Error("ingestion failed",
			zap.String("stage", string(outcome.Stage)),
			zap.Error(outcome.Err))
		if outcome.loaded {
			if err := o.finish(ctx, &outcome, models.DocumentStatusFailed, log); err != nil {
				return outcome
			}
		}
		if delivery != nil {
			if err := delivery.Reject(ctx, outcome.Err.Error()); err != nil {
				log.Error("reject failed", zap.Error(err))
			}
		}

	default:
		if err := o.finish(ctx, &outcome, models.DocumentStatusDone, log); err != nil {
			outcome.Err = err
			return outcome
		}
		o.ack(ctx, delivery, log)
		outcome.Stage = StageAcked
		log.Info("ingestion completed",
			zap.Int("fragments", outcome.Fragments),
			zap.String("reader", string(outcome.Reader)))
	}
	return outcome
}

func (o *IngestionOrchestrator) ack(ctx context.Context, delivery queue.Delivery, log *zap.Logger) {
	if delivery == nil {
		return
	}
	if err := delivery.Ack(ctx); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

// finish 在确认或拒绝消息之前写入终态。写入失败时消息保持未确认，等待重新投递
func (o *IngestionOrchestrator) finish(ctx context.Context, outcome *Outcome, status string, log *zap.Logger) error {
	update := repository.TerminalUpdate{
		VectorCount:     0,
		EmbeddingStatus: models.EmbeddingStatusSkipped,
	}
	if o.pipeline.Embedder != nil {
		update.EmbeddingStatus = models.EmbeddingStatusFailed
	}
	if status == models.DocumentStatusDone {
		if o.pipeline.Embedder != nil {
			update.VectorCount = outcome.Fragments
			update.EmbeddingStatus = models.EmbeddingStatusDone
		}
	}

	changed, err := o.states.Transition(context.WithoutCancel(ctx), outcome.DocumentID, status, update)
	if err != nil {
		log.Error("failed to record terminal status, leaving message unacknowledged",
			zap.String("status", status), zap.Error(err))
		return err
	}
	if changed {
		outcome.Status = status
		o.metrics.DocumentFinished(status, outcome.Fragments)
	}
	return nil
}

func (o *IngestionOrchestrator) run(ctx context.Context, documentID uint, log *zap.Logger) Outcome {
	outcome := Outcome{DocumentID: documentID, Stage: StageReceived}
	fail := func(err error) Outcome {
		outcome.Err = err
		return outcome
	}

	doc, err := o.documents.GetByID(ctx, documentID)
	if err != nil {
		return fail(err)
	}
	outcome.Status = doc.Status
	if doc.IsTerminal() {
		outcome.Skipped = true
		return outcome
	}
	outcome.loaded = true

	key := doc.BlobKey()
	if key == "" {
		return fail(apperrors.NewDatabaseError(fmt.Sprintf("document %d has no blob key", documentID)))
	}

	workDir, err := os.MkdirTemp(o.pipeline.TempDir, "ingest-*")
	if err != nil {
		return fail(apperrors.NewStorageError("failed to create temp dir").WithCause(err))
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("failed to remove temp dir", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	started := time.Now()
	localPath := filepath.Join(workDir, "source"+sourceExt(doc))
	if err := o.blobs.DownloadToFile(ctx, key, localPath); err != nil {
		return fail(err)
	}
	o.metrics.ObserveStage(string(StageDownloaded), started)
	outcome.Stage = StageDownloaded

	started = time.Now()
	text, readerKind, err := o.pipeline.Readers.Read(ctx, localPath)
	if err != nil {
		return fail(err)
	}
	o.metrics.ObserveStage(string(StageExtracted), started)
	outcome.Stage = StageExtracted
	outcome.Reader = readerKind

	started = time.Now()
	text = o.pipeline.Cleaner.Clean(text)
	o.metrics.ObserveStage(string(StageCleaned), started)
	outcome.Stage = StageCleaned

	started = time.Now()
	chunks, err := o.pipeline.Splitter.Split(ctx, text)
	if err != nil {
		return fail(err)
	}
	if len(chunks) == 0 {
		return fail(apperrors.NewExtractionError(fmt.Sprintf("document %d produced no fragments", documentID)))
	}
	o.metrics.ObserveStage(string(StageSplit), started)
	outcome.Stage = StageSplit

	fragments := make([]models.Fragment, len(chunks))
	for i, chunk := range chunks {
		fragments[i] = models.Fragment{
			DocumentID:    documentID,
			FragmentIndex: i,
			Content:       chunk,
			ChunkSize:     o.pipeline.ChunkSize,
			CreatedBy:     doc.CreatedBy,
		}
	}

	if embedder := o.pipeline.Embedder; embedder != nil {
		started = time.Now()
		if err := embedFragments(ctx, embedder, chunks, fragments); err != nil {
			return fail(err)
		}
		o.metrics.ObserveStage(string(StageEmbedded), started)
		outcome.Stage = StageEmbedded
	}

	started = time.Now()
	if err := o.fragments.ReplaceForDocument(ctx, documentID, fragments); err != nil {
		return fail(err)
	}
	if o.index != nil && o.pipeline.Embedder != nil {
		if err := o.index.Index(ctx, fragments); err != nil {
			if !apperrors.IsAppError(err) {
				err = apperrors.NewDatabaseError("vector index write failed").WithCause(err)
			}
			return fail(err)
		}
	}
	o.metrics.ObserveStage(string(StagePersisted), started)
	outcome.Stage = StagePersisted
	outcome.Fragments = len(fragments)
	return outcome
}

func embedFragments(ctx context.Context, embedder knowledge.Embedder, chunks []string, fragments []models.Fragment) error {
	vectors, err := embedder.EmbedMany(ctx, chunks)
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.NewEmbeddingError("embedding failed").WithCause(err)
	}
	if len(vectors) != len(fragments) {
		return apperrors.NewEmbeddingError(fmt.Sprintf("expected %d vectors, got %d", len(fragments), len(vectors)))
	}
	model := embedder.Model()
	for i := range fragments {
		fragments[i].SetEmbedding(vectors[i])
		fragments[i].EmbeddingModel = model
	}
	return nil
}

func sourceExt(doc *models.Document) string {
	if ext := documentExt(doc.Type); ext != "" {
		return ext
	}
	return filepath.Ext(doc.BlobKey())
}
