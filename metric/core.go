package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the client-level metrics (not telescope-specific)
type Metrics struct {
	// Receive loop metrics
	MessagesReceived *prometheus.CounterVec
	MergesApplied    *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	Notifications    *prometheus.CounterVec

	// Handshake metrics
	HandshakeFallbacks *prometheus.CounterVec

	// Transport metrics
	TransportConnected  prometheus.Gauge
	TransportReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all client metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "statuskit",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of messages received per topic",
			},
			[]string{"topic"},
		),

		MergesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "statuskit",
				Subsystem: "merges",
				Name:      "applied_total",
				Help:      "Total number of merges applied per topic and result (changed/unchanged)",
			},
			[]string{"topic", "result"},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "statuskit",
				Subsystem: "messages",
				Name:      "dropped_total",
				Help:      "Total number of messages dropped per reason",
			},
			[]string{"reason"},
		),

		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "statuskit",
				Subsystem: "observers",
				Name:      "notifications_total",
				Help:      "Total number of observer notification rounds fired per topic",
			},
			[]string{"topic"},
		),

		HandshakeFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "statuskit",
				Subsystem: "handshake",
				Name:      "fallbacks_total",
				Help:      "Total number of topics that timed out waiting for the handshake snapshot",
			},
			[]string{"topic"},
		),

		TransportConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "statuskit",
				Subsystem: "transport",
				Name:      "connected",
				Help:      "Transport connection status (0=disconnected, 1=connected)",
			},
		),

		TransportReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "statuskit",
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Total number of transport reconnections",
			},
		),
	}
}

// Dropped increments the drop counter for a reason. Nil-safe so callers
// need no metrics guard.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// Received increments the per-topic receive counter. Nil-safe.
func (m *Metrics) Received(topic string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(topic).Inc()
}

// Merged records a merge outcome for a topic. Nil-safe.
func (m *Metrics) Merged(topic string, changed bool) {
	if m == nil {
		return
	}
	result := "unchanged"
	if changed {
		result = "changed"
	}
	m.MergesApplied.WithLabelValues(topic, result).Inc()
}

// Notified records an observer notification round for a topic. Nil-safe.
func (m *Metrics) Notified(topic string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(topic).Inc()
}

// HandshakeFallback records a handshake snapshot timeout. Nil-safe.
func (m *Metrics) HandshakeFallback(topic string) {
	if m == nil {
		return
	}
	m.HandshakeFallbacks.WithLabelValues(topic).Inc()
}

// SetConnected records the transport connection state. Nil-safe.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.TransportConnected.Set(1)
	} else {
		m.TransportConnected.Set(0)
	}
}

// Reconnected records a transport reconnection. Nil-safe.
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.TransportReconnects.Inc()
}
