// Package prometheus implements the metrics interfaces on the process
// Prometheus registry.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/fixgate/pkg/metrics"
)

// engineMetrics is the Prometheus implementation of metrics.EngineMetrics.
type engineMetrics struct {
	inboundTotal    *prometheus.CounterVec
	inboundDuration *prometheus.HistogramVec
	outboundTotal   *prometheus.CounterVec
	frameBytes      *prometheus.HistogramVec
	protocolErrors  *prometheus.CounterVec
	resendRequests  prometheus.Counter
	disconnects     *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	sessionsKnown   prometheus.Gauge
}

// NewEngineMetrics creates a Prometheus-backed EngineMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called), so
// the result can be passed straight to the engine either way.
func NewEngineMetrics() metrics.EngineMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &engineMetrics{
		inboundTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixgate_inbound_messages_total",
				Help: "Inbound messages by MsgType and outcome",
			},
			[]string{"msg_type", "outcome"},
		),
		inboundDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fixgate_inbound_duration_seconds",
				Help:    "Inbound message processing duration",
				Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
			},
			[]string{"msg_type"},
		),
		outboundTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixgate_outbound_messages_total",
				Help: "Outbound messages by MsgType",
			},
			[]string{"msg_type"},
		),
		frameBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fixgate_frame_bytes",
				Help:    "Wire frame sizes by direction",
				Buckets: prometheus.ExponentialBuckets(64, 2, 9),
			},
			[]string{"direction"},
		),
		protocolErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixgate_protocol_errors_total",
				Help: "Protocol errors by kind",
			},
			[]string{"kind"},
		),
		resendRequests: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fixgate_resend_requests_total",
				Help: "Inbound resend requests",
			},
		),
		disconnects: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fixgate_disconnects_total",
				Help: "Session disconnects by reason",
			},
			[]string{"reason"},
		),
		sessionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fixgate_sessions_active",
				Help: "Sessions currently logged on",
			},
		),
		sessionsKnown: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fixgate_sessions_known",
				Help: "Sessions held by the registry, connected or not",
			},
		),
	}
}

func (m *engineMetrics) RecordInbound(msgType string, duration time.Duration, outcome string) {
	m.inboundTotal.WithLabelValues(msgType, outcome).Inc()
	m.inboundDuration.WithLabelValues(msgType).Observe(duration.Seconds())
}

func (m *engineMetrics) RecordOutbound(msgType string) {
	m.outboundTotal.WithLabelValues(msgType).Inc()
}

func (m *engineMetrics) RecordFrameBytes(direction string, bytes int) {
	m.frameBytes.WithLabelValues(direction).Observe(float64(bytes))
}

func (m *engineMetrics) RecordProtocolError(kind string) {
	m.protocolErrors.WithLabelValues(kind).Inc()
}

func (m *engineMetrics) RecordResendRequest() {
	m.resendRequests.Inc()
}

func (m *engineMetrics) RecordDisconnect(reason string) {
	m.disconnects.WithLabelValues(reason).Inc()
}

func (m *engineMetrics) SetSessionsActive(n int) {
	m.sessionsActive.Set(float64(n))
}

func (m *engineMetrics) SetSessionsKnown(n int) {
	m.sessionsKnown.Set(float64(n))
}
