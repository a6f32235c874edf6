package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 上传结果
const (
	UploadAccepted       = "accepted"
	UploadRejected       = "rejected"
	UploadPublishFailed  = "publish_failed"
	UploadInternalFailed = "error"
)

// PipelineMetrics 流水线指标
type PipelineMetrics struct {
	documentsTotal      *prometheus.CounterVec
	fragmentsTotal      prometheus.Counter
	stageDuration       *prometheus.HistogramVec
	uploadsTotal        *prometheus.CounterVec
	retrievalDuration   prometheus.Histogram
	retrievalResultSize prometheus.Histogram
}

// New 在给定Registerer上注册指标，reg为nil时不注册（测试用）
func New(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		documentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_documents_total",
				Help: "Documents that reached a terminal ingestion status",
			},
			[]string{"status"},
		),
		fragmentsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_fragments_total",
				Help: "Fragments persisted by the ingestion pipeline",
			},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_stage_duration_seconds",
				Help:    "Duration of each ingestion stage",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 9),
			},
			[]string{"stage"},
		),
		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uploads_total",
				Help: "Upload requests by result",
			},
			[]string{"result"},
		),
		retrievalDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_duration_seconds",
				Help:    "Duration of similarity searches including query embedding",
				Buckets: prometheus.DefBuckets,
			},
		),
		retrievalResultSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_results",
				Help:    "Number of fragments returned per search",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
	}
}

// ObserveStage 记录阶段耗时
func (m *PipelineMetrics) ObserveStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// DocumentFinished 文档进入终态
func (m *PipelineMetrics) DocumentFinished(status string, fragments int) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(status).Inc()
	if fragments > 0 {
		m.fragmentsTotal.Add(float64(fragments))
	}
}

// Upload 记录上传结果
func (m *PipelineMetrics) Upload(result string) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(result).Inc()
}

// Retrieval 记录检索耗时和结果数
func (m *PipelineMetrics) Retrieval(started time.Time, results int) {
	if m == nil {
		return
	}
	m.retrievalDuration.Observe(time.Since(started).Seconds())
	m.retrievalResultSize.Observe(float64(results))
}
