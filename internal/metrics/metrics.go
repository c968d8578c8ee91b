// Package metrics exposes Prometheus collectors for the shortener service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	urlsCreatedTotal            prometheus.Counter
	urlsClickedTotal            prometheus.Counter
	jobsProcessedTotal          *prometheus.CounterVec
	jobProcessingDurationSecond *prometheus.HistogramVec
	queueDepth                  prometheus.Gauge
	activeWorkers               prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests, labeled by method, endpoint and status.",
			},
			[]string{"method", "endpoint", "status"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds, labeled by method and endpoint.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "endpoint"},
		)

		urlsCreatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "urls_created_total",
				Help: "Total URLs created.",
			},
		)

		urlsClickedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "urls_clicked_total",
				Help: "Total URL clicks.",
			},
		)

		jobsProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobs_processed_total",
				Help: "Total jobs processed, labeled by job type and outcome.",
			},
			[]string{"job_type", "status"},
		)

		jobProcessingDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "job_processing_duration_seconds",
				Help:    "Job processing duration in seconds, labeled by job type.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"job_type"},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "job_queue_depth",
				Help: "Current broker length, the autoscaling input signal.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "worker_active_jobs",
				Help: "Number of workers currently processing a job.",
			},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// URLCreated counts a successful shorten.
func URLCreated() {
	Init()
	urlsCreatedTotal.Inc()
}

// URLClicked counts a redirect.
func URLClicked() {
	Init()
	urlsClickedTotal.Inc()
}

// JobProcessed counts one finished job execution by outcome.
func JobProcessed(jobType, status string) {
	Init()
	jobsProcessedTotal.WithLabelValues(jobType, status).Inc()
}

// ObserveJobDuration records handler execution time.
func ObserveJobDuration(jobType string, duration time.Duration) {
	Init()
	jobProcessingDurationSecond.WithLabelValues(jobType).Observe(duration.Seconds())
}

// SetQueueDepth publishes the broker length gauge.
func SetQueueDepth(n int64) {
	Init()
	queueDepth.Set(float64(n))
}

// WorkerBusy marks a worker entering or leaving job processing.
func WorkerBusy(busy bool) {
	Init()
	if busy {
		activeWorkers.Inc()
		return
	}
	activeWorkers.Dec()
}
