// Package metrics holds the Prometheus instrumentation for capture
// sessions. Registration happens once via New; sessions hold a *Metrics
// and call the Record helpers, or carry nil to disable instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the capture pipeline.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionFaults   *prometheus.CounterVec

	// Frame metrics
	FramesDelivered prometheus.Counter
	FramesDropped   *prometheus.CounterVec
	FrameSize       prometheus.Histogram

	// Conversion metrics
	Conversions      *prometheus.CounterVec
	ConversionErrors prometheus.Counter
}

// New creates and registers all metrics on the default registerer.
func New() *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camcap_active_sessions",
			Help: "Number of sessions currently capturing",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "camcap_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		SessionFaults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camcap_session_faults_total",
				Help: "Total number of sessions that entered the faulted state",
			},
			[]string{"reason"},
		),

		FramesDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "camcap_frames_delivered_total",
			Help: "Total number of frames delivered to consumers",
		}),
		FramesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camcap_frames_dropped_total",
				Help: "Total number of frames dropped",
			},
			[]string{"reason"}, // queue_full, conversion, stopping
		),
		FrameSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "camcap_frame_size_bytes",
			Help:    "Size of delivered frames in bytes",
			Buckets: prometheus.ExponentialBuckets(16384, 4, 8), // 16KB to ~256MB
		}),

		Conversions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camcap_conversions_total",
				Help: "Total number of pixel-format conversions",
			},
			[]string{"src", "dst"},
		),
		ConversionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "camcap_conversion_errors_total",
			Help: "Total number of failed pixel-format conversions",
		}),
	}
}

// RecordSessionStart records a session entering the capturing state.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
	m.SessionsStarted.Inc()
}

// RecordSessionStop records a session leaving the capturing state.
func (m *Metrics) RecordSessionStop() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// RecordFault records a session fault by reason.
func (m *Metrics) RecordFault(reason string) {
	if m == nil {
		return
	}
	m.SessionFaults.WithLabelValues(reason).Inc()
}

// RecordDelivered records one frame handed to a consumer.
func (m *Metrics) RecordDelivered(sizeBytes int) {
	if m == nil {
		return
	}
	m.FramesDelivered.Inc()
	m.FrameSize.Observe(float64(sizeBytes))
}

// RecordDropped records one dropped frame by reason.
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordConversion records one conversion attempt.
func (m *Metrics) RecordConversion(src, dst string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ConversionErrors.Inc()
		return
	}
	m.Conversions.WithLabelValues(src, dst).Inc()
}
