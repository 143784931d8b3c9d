package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"parley/internal/domain"
)

// Metrics holds the Prometheus collectors for one controller.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	SessionDuration prometheus.Histogram

	ChunksFlushed prometheus.Counter
	BytesFlushed  prometheus.Counter
	FlushSize     prometheus.Histogram

	InboundMessages *prometheus.CounterVec

	PlaybackUnits    *prometheus.CounterVec
	PlaybackBytes    prometheus.Counter
	PlaybackDuration prometheus.Histogram
	PlaybackQueue    prometheus.Gauge

	Errors *prometheus.CounterVec
}

// NewMetrics creates a private registry and registers every collector on it.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_sessions_started_total",
			Help: "Total number of streaming sessions started",
		}, []string{"mode"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "parley_active_sessions",
			Help: "Number of sessions currently running",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "parley_session_duration_seconds",
			Help:    "Duration of finished sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		ChunksFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_outbound_flushes_total",
			Help: "Total number of merged capture payloads sent to the backend",
		}),
		BytesFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_outbound_bytes_total",
			Help: "Total number of capture bytes sent to the backend",
		}),
		FlushSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "parley_outbound_flush_size_bytes",
			Help:    "Size of merged capture payloads",
			Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256B to ~512KB
		}),

		InboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_inbound_messages_total",
			Help: "Total number of inbound messages by kind",
		}, []string{"kind"}),

		PlaybackUnits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_playback_units_total",
			Help: "Total number of merged audio units played",
		}, []string{"result"}),
		PlaybackBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "parley_playback_bytes_total",
			Help: "Total number of audio bytes played",
		}),
		PlaybackDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "parley_playback_duration_seconds",
			Help:    "Wall time spent playing merged audio units",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		PlaybackQueue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "parley_playback_queue_chunks",
			Help: "Audio chunks waiting for the current unit to finish",
		}),

		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_errors_total",
			Help: "Total number of errors reported to observers",
		}, []string{"code"}),
	}
}

// Registry exposes the collectors for scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionStarted(mode domain.Mode) {
	m.SessionsStarted.WithLabelValues(string(mode)).Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionEnded(seconds float64) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(seconds)
}

func (m *Metrics) ChunkFlushed(bytes int) {
	m.ChunksFlushed.Inc()
	m.BytesFlushed.Add(float64(bytes))
	m.FlushSize.Observe(float64(bytes))
}

func (m *Metrics) InboundReceived(kind string) {
	m.InboundMessages.WithLabelValues(kind).Inc()
}

// PlaybackFinished counts one played unit. bytes is the merged unit size.
func (m *Metrics) PlaybackFinished(bytes int, seconds float64, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		result = "canceled"
	default:
		result = "error"
	}
	m.PlaybackUnits.WithLabelValues(result).Inc()
	if err == nil {
		m.PlaybackBytes.Add(float64(bytes))
		m.PlaybackDuration.Observe(seconds)
	}
}

func (m *Metrics) QueueDepth(chunks int) {
	m.PlaybackQueue.Set(float64(chunks))
}

func (m *Metrics) ErrorRaised(code domain.ErrorCode) {
	m.Errors.WithLabelValues(string(code)).Inc()
}
