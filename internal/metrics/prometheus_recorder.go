package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	jobDuration   *prom.HistogramVec
	jobResults    *prom.CounterVec
	queueDepth    *prom.GaugeVec
	backupSaves   *prom.CounterVec
	uploadResults *prom.CounterVec
	aiDuration    *prom.HistogramVec
	sources       *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.jobDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "leadforge",
			Name:      "job_duration_seconds",
			Help:      "Duration of pipeline jobs from dispatch to terminal state",
			Buckets:   prom.ExponentialBuckets(0.5, 2, 12),
		}, []string{"work_type"})
		pr.jobResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "leadforge",
			Name:      "job_results_total",
			Help:      "Job results by terminal state",
		}, []string{"work_type", "result"})
		pr.queueDepth = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "leadforge",
			Name:      "queue_depth",
			Help:      "Jobs currently queued per work type",
		}, []string{"work_type"})
		pr.backupSaves = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "leadforge",
			Name:      "backup_saves_total",
			Help:      "Backup records written per engine",
		}, []string{"engine"})
		pr.uploadResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "leadforge",
			Name:      "upload_results_total",
			Help:      "Remote upsert results per engine",
		}, []string{"engine", "result"})
		pr.aiDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "leadforge",
			Name:      "ai_call_duration_seconds",
			Help:      "Duration of AI model calls per analyzer dimension",
			Buckets:   prom.DefBuckets,
		}, []string{"dimension", "result"})
		pr.sources = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "leadforge",
			Name:      "discovery_source_results_total",
			Help:      "Page discovery source outcomes",
		}, []string{"source", "result"})
		reg.MustRegister(pr.jobDuration, pr.jobResults, pr.queueDepth, pr.backupSaves, pr.uploadResults, pr.aiDuration, pr.sources)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveJobDuration(workType string, d time.Duration) {
	if p == nil || p.jobDuration == nil {
		return
	}
	p.jobDuration.WithLabelValues(workType).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobResult(workType string, result ResultLabel) {
	if p == nil || p.jobResults == nil {
		return
	}
	p.jobResults.WithLabelValues(workType, string(result)).Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(workType string, n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.WithLabelValues(workType).Set(float64(n))
}

func (p *PrometheusRecorder) IncBackupSave(engine string) {
	if p == nil || p.backupSaves == nil {
		return
	}
	p.backupSaves.WithLabelValues(engine).Inc()
}

func (p *PrometheusRecorder) IncUploadResult(engine string, success bool) {
	if p == nil || p.uploadResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.uploadResults.WithLabelValues(engine, res).Inc()
}

func (p *PrometheusRecorder) ObserveAICallDuration(dimension string, d time.Duration, success bool) {
	if p == nil || p.aiDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.aiDuration.WithLabelValues(dimension, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDiscoverySource(source string, success bool) {
	if p == nil || p.sources == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.sources.WithLabelValues(source, res).Inc()
}
