package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	RealtimeMessages  *prometheus.CounterVec
	DeviceMessages    *prometheus.CounterVec
	OutboundDropped   *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	VoiceTransitions  *prometheus.CounterVec
	ToolCalls         *prometheus.CounterVec
	ToolLatency       *prometheus.HistogramVec
	BargeIns          prometheus.Counter
	FirstAudioLatency prometheus.Histogram
	ThreadSaves       *prometheus.CounterVec

	Latency *LatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of connected realtime voice sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		RealtimeMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_messages_total",
			Help:      "Realtime API websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		DeviceMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_messages_total",
			Help:      "Device bridge websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		OutboundDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_dropped_total",
			Help:      "Outbound frames dropped by channel and reason.",
		}, []string{"channel", "reason"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		VoiceTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_transitions_total",
			Help:      "Voice state transitions by from/to state.",
		}, []string{"from", "to"}),
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ToolLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_ms",
			Help:      "Tool execution latency in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"tool"}),
		BargeIns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Assistant playback interrupted by user speech.",
		}),
		FirstAudioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from response request to first assistant audio chunk in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000},
		}),
		ThreadSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thread_saves_total",
			Help:      "Conversation thread persistence writes by backend and outcome.",
		}, []string{"backend", "outcome"}),
		Latency: NewLatencyWindow(128),
	}
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
	m.Latency.Observe(StageCommitToFirstAudio, d)
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.Latency.Observe(stage, d)
}

func (m *Metrics) LatencySnapshot() LatencySnapshot {
	if m == nil {
		return LatencySnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.Latency.Snapshot()
}

func (m *Metrics) ObserveRealtimeMessage(direction, eventType string) {
	if m == nil {
		return
	}
	m.RealtimeMessages.WithLabelValues(direction, eventType).Inc()
}

func (m *Metrics) ObserveDeviceMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.DeviceMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveDropped(channel, reason string) {
	if m == nil {
		return
	}
	m.OutboundDropped.WithLabelValues(channel, reason).Inc()
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveVoiceTransition(from, to string) {
	if m == nil {
		return
	}
	m.VoiceTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveToolCall(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolLatency.WithLabelValues(tool).Observe(float64(d.Milliseconds()))
	m.Latency.Observe(StageToolPrefix+tool, d)
}

func (m *Metrics) ObserveBargeIn() {
	if m == nil {
		return
	}
	m.BargeIns.Inc()
}

func (m *Metrics) ObserveThreadSave(backend, outcome string) {
	if m == nil {
		return
	}
	m.ThreadSaves.WithLabelValues(backend, outcome).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
