package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsSubmitted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "spool_jobs_submitted_total", Help: "Jobs accepted for processing"})
	JobsDeduped      = prometheus.NewCounter(prometheus.CounterOpts{Name: "spool_jobs_deduped_total", Help: "Submissions resolved to an existing job"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "spool_rate_limit_rejects_total", Help: "Submissions rejected by the rate limiter"})
	URLRejects       = prometheus.NewCounter(prometheus.CounterOpts{Name: "spool_url_rejects_total", Help: "Submissions rejected by the URL validator"})
	PipelineSuccess  = prometheus.NewCounter(prometheus.CounterOpts{Name: "spool_pipeline_success_total", Help: "Pipeline runs that reached done"})
	PipelineFailures = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "spool_pipeline_failures_total", Help: "Pipeline runs that failed, by stage"}, []string{"stage"})
	StageDuration    = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spool_stage_duration_seconds",
		Help:    "Wall-clock time spent per pipeline stage",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"stage"})
	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "spool_webhook_deliveries_total", Help: "Task webhook deliveries, by outcome"}, []string{"outcome"})
)

// ObserveStage records one stage execution.
func ObserveStage(stage string, elapsed time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsSubmitted,
			JobsDeduped,
			RateLimitRejects,
			URLRejects,
			PipelineSuccess,
			PipelineFailures,
			StageDuration,
			WebhookDeliveries,
		)
	})
	return promhttp.Handler()
}
