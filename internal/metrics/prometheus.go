package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the healing audio service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Music generation metrics
	SongSubmissions  *prometheus.CounterVec
	SongPolls        *prometheus.CounterVec
	SongOutcomes     *prometheus.CounterVec
	SongWaitDuration prometheus.Histogram

	// Artifact download metrics
	Downloads     *prometheus.CounterVec
	DownloadBytes prometheus.Histogram

	// Speech synthesis metrics
	SpeechRequests *prometheus.CounterVec
	SpeechDuration prometheus.Histogram

	// Registry metrics
	ActiveJobs prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		SongSubmissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healing_song_submissions_total",
			Help: "Total number of music generation submissions",
		}, []string{"result"}),
		SongPolls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healing_song_polls_total",
			Help: "Total number of status polls by mapped status",
		}, []string{"status"}),
		SongOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healing_song_outcomes_total",
			Help: "Total number of finished song generations by outcome kind",
		}, []string{"kind"}),
		SongWaitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "healing_song_wait_duration_seconds",
			Help:    "Wall-clock time spent driving a generation job to a terminal status",
			Buckets: prometheus.ExponentialBuckets(5, 2, 9), // 5s to ~21 minutes
		}),

		Downloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healing_artifact_downloads_total",
			Help: "Total number of artifact downloads by result",
		}, []string{"result"}),
		DownloadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "healing_artifact_size_bytes",
			Help:    "Size of downloaded artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~32MB
		}),

		SpeechRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healing_speech_requests_total",
			Help: "Total number of speech synthesis requests by result",
		}, []string{"result"}),
		SpeechDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "healing_speech_duration_seconds",
			Help:    "Duration of speech synthesis requests",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1 minute
		}),

		ActiveJobs: f.NewGauge(prometheus.GaugeOpts{
			Name: "healing_active_jobs",
			Help: "Current number of song jobs still running",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healing_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healing_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "healing_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordSubmission counts a submission attempt; result is "ok" or a failure label.
func (m *Metrics) RecordSubmission(result string) {
	if m == nil {
		return
	}
	m.SongSubmissions.WithLabelValues(result).Inc()
}

// RecordPoll counts one status poll.
func (m *Metrics) RecordPoll(status string) {
	if m == nil {
		return
	}
	m.SongPolls.WithLabelValues(status).Inc()
}

// RecordOutcome records how a generation finished and how long it waited.
func (m *Metrics) RecordOutcome(kind string, waitSeconds float64) {
	if m == nil {
		return
	}
	m.SongOutcomes.WithLabelValues(kind).Inc()
	m.SongWaitDuration.Observe(waitSeconds)
}

// RecordDownload records an artifact download.
func (m *Metrics) RecordDownload(ok bool, sizeBytes int) {
	if m == nil {
		return
	}
	if !ok {
		m.Downloads.WithLabelValues("failed").Inc()
		return
	}
	m.Downloads.WithLabelValues("ok").Inc()
	m.DownloadBytes.Observe(float64(sizeBytes))
}

// RecordSpeech records a speech synthesis request.
func (m *Metrics) RecordSpeech(ok bool, durationSeconds float64) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.SpeechRequests.WithLabelValues(result).Inc()
	m.SpeechDuration.Observe(durationSeconds)
}

// SetActiveJobs sets the number of running song jobs.
func (m *Metrics) SetActiveJobs(count int) {
	if m == nil {
		return
	}
	m.ActiveJobs.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
