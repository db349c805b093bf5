// Package metrics exposes Prometheus collectors for the HTTP API and for
// webhook delivery.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leadforge/leadhooks/internal/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadhooks_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leadhooks_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	webhookAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadhooks_webhook_attempts_total",
		Help: "Total webhook delivery attempts by event type and result.",
	}, []string{"event_type", "status"})

	webhookAttemptLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leadhooks_webhook_attempt_duration_seconds",
		Help:    "Webhook delivery attempt latency in seconds.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
	}, []string{"event_type"})

	webhookExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadhooks_webhook_exhausted_total",
		Help: "Deliveries that used every attempt without a 2xx response.",
	}, []string{"event_type"})

	webhookDuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadhooks_webhook_duplicate_attempts_total",
		Help: "Attempts skipped because a dedup marker already existed.",
	}, []string{"event_type"})

	sweptRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadhooks_expired_records_swept_total",
		Help: "Delivery records and dedup markers removed by the retention sweeper.",
	})

	dependencyUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "leadhooks_dependency_up",
		Help: "1 if the last readiness probe of a storage dependency succeeded.",
	}, []string{"name"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// Handler returns a Gin handler that serves Prometheus metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordSwept adds n to the retention sweeper counter.
func RecordSwept(n int64) {
	sweptRecordsTotal.Add(float64(n))
}

// RecordDependency sets the readiness gauge for one dependency.
func RecordDependency(name string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	dependencyUp.WithLabelValues(name).Set(v)
}

// WebhookRecorder implements webhooks.MetricsRecorder.
type WebhookRecorder struct{}

var _ webhooks.MetricsRecorder = WebhookRecorder{}

// AttemptCompleted records one delivery attempt.
func (WebhookRecorder) AttemptCompleted(eventType webhooks.EventType, success bool, elapsed time.Duration) {
	status := "failure"
	if success {
		status = "success"
	}
	webhookAttemptsTotal.WithLabelValues(eventType.String(), status).Inc()
	webhookAttemptLatency.WithLabelValues(eventType.String()).Observe(elapsed.Seconds())
}

// DeliveryExhausted records a delivery that ran out of attempts.
func (WebhookRecorder) DeliveryExhausted(eventType webhooks.EventType) {
	webhookExhaustedTotal.WithLabelValues(eventType.String()).Inc()
}

// DuplicateSkipped records an attempt suppressed by the dedup guard.
func (WebhookRecorder) DuplicateSkipped(eventType webhooks.EventType) {
	webhookDuplicatesTotal.WithLabelValues(eventType.String()).Inc()
}
