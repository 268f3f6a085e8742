// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_gateway"

// Pipeline stage label values.
const (
	StageSTT = "stt"
	StageLLM = "llm"
	StageTTS = "tts"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Utterance metrics
	UtterancesStarted  prometheus.Counter
	UtterancesFinished *prometheus.CounterVec
	UtterancesDropped  *prometheus.CounterVec
	UtteranceAudioSecs prometheus.Histogram

	// Protocol metrics
	ProtocolErrors      *prometheus.CounterVec
	AudioBytesReceived  prometheus.Counter
	AudioChunksReceived prometheus.Counter

	// Pipeline metrics
	StageLatency *prometheus.HistogramVec
	StageErrors  *prometheus.CounterVec
	TurnLatency  prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Device-side backpressure
	FrameQueueOverflows prometheus.Counter

	// gRPC health service
	GRPCRequests *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of WebSocket sessions accepted",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected sessions",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of WebSocket sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		UtterancesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_started_total",
			Help:      "Total number of utterances opened by begin_utt",
		}),
		UtterancesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_finished_total",
			Help:      "Total number of closed utterances by pipeline outcome",
		}, []string{"outcome"}),
		UtterancesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_dropped_total",
			Help:      "Total number of utterances discarded without processing",
		}, []string{"reason"}),
		UtteranceAudioSecs: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_audio_seconds",
			Help:      "Audio duration of closed utterances",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),

		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Total number of error replies sent for protocol violations",
		}, []string{"reason"}),
		AudioBytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total decoded audio bytes received",
		}),
		AudioChunksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_received_total",
			Help:      "Total audio_chunk messages received",
		}),

		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		StageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Total number of pipeline stage failures",
		}, []string{"stage", "error_type"}),
		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "Time from utterance close to reply ready",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		FrameQueueOverflows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_queue_overflows_total",
			Help:      "Total capture frames dropped because the frame queue was full",
		}),

		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC calls handled by method and status code",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordUtteranceStarted records a begin_utt accepted.
func (m *Metrics) RecordUtteranceStarted() {
	m.UtterancesStarted.Inc()
}

// RecordUtteranceFinished records the pipeline outcome of a closed utterance.
func (m *Metrics) RecordUtteranceFinished(outcome string, audioSeconds float64) {
	m.UtterancesFinished.WithLabelValues(outcome).Inc()
	m.UtteranceAudioSecs.Observe(audioSeconds)
}

// RecordUtteranceDropped records an utterance discarded without processing.
func (m *Metrics) RecordUtteranceDropped(reason string) {
	m.UtterancesDropped.WithLabelValues(reason).Inc()
}

// RecordProtocolError records an error reply sent to a client.
func (m *Metrics) RecordProtocolError(reason string) {
	m.ProtocolErrors.WithLabelValues(reason).Inc()
}

// RecordAudioReceived records one decoded audio chunk.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioChunksReceived.Inc()
}

// RecordStage records a pipeline stage completion.
func (m *Metrics) RecordStage(stage string, latencySeconds float64) {
	m.StageLatency.WithLabelValues(stage).Observe(latencySeconds)
}

// RecordStageError records a pipeline stage failure.
func (m *Metrics) RecordStageError(stage, errorType string) {
	m.StageErrors.WithLabelValues(stage, errorType).Inc()
}

// RecordTurn records end-to-end turn latency.
func (m *Metrics) RecordTurn(latencySeconds float64) {
	m.TurnLatency.Observe(latencySeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordFrameQueueOverflow records a capture frame dropped on overflow.
func (m *Metrics) RecordFrameQueueOverflow() {
	m.FrameQueueOverflows.Inc()
}

// RecordGRPCRequest records a completed gRPC call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}
