package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline names used as label values.
const (
	PipelineTranscription = "transcription"
	PipelineReply         = "reply"
)

// Metrics contains all Prometheus metrics for the voice pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Recording metrics
	RecordingsStarted prometheus.Counter
	RecordingsFailed  *prometheus.CounterVec
	ClipBytes         prometheus.Histogram

	// Collaborator request metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	StaleResponses  *prometheus.CounterVec

	// Playback metrics
	PlaybackActions *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voicestage_recordings_started_total",
			Help: "Total number of capture sessions opened",
		}),
		RecordingsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicestage_recordings_failed_total",
			Help: "Total number of capture start failures by cause",
		}, []string{"cause"}),
		ClipBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicestage_clip_size_bytes",
			Help:    "Size of finalized recording clips",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicestage_requests_total",
			Help: "Collaborator requests by pipeline and outcome",
		}, []string{"pipeline", "outcome"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicestage_request_duration_seconds",
			Help:    "Collaborator round-trip latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"pipeline"}),
		StaleResponses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicestage_stale_responses_total",
			Help: "Responses discarded because a newer request was issued",
		}, []string{"pipeline"}),

		PlaybackActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voicestage_playback_actions_total",
			Help: "Playback control actions",
		}, []string{"action"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

func (m *Metrics) RecordingFailed(cause string) {
	if m == nil {
		return
	}
	m.RecordingsFailed.WithLabelValues(cause).Inc()
}

func (m *Metrics) ObserveClip(size int) {
	if m == nil {
		return
	}
	m.ClipBytes.Observe(float64(size))
}

func (m *Metrics) ObserveRequest(pipeline string, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(pipeline, outcome).Inc()
	m.RequestDuration.WithLabelValues(pipeline).Observe(elapsed.Seconds())
}

func (m *Metrics) StaleResponse(pipeline string) {
	if m == nil {
		return
	}
	m.StaleResponses.WithLabelValues(pipeline).Inc()
}

func (m *Metrics) PlaybackAction(action string) {
	if m == nil {
		return
	}
	m.PlaybackActions.WithLabelValues(action).Inc()
}
