package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notification-hub/internal/models"
)

const namespace = "notification_hub"

// Delivery outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeTimeout   = "timeout"
	OutcomeFailed    = "failed"
)

// ConnectionSource reports live connection counts. The registry implements it.
type ConnectionSource interface {
	Metrics() models.ConnectionMetrics
}

// Metrics holds the Prometheus collectors of the fan-out service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Deliveries             *prometheus.CounterVec
	InboundMessages        *prometheus.CounterVec
	Heartbeats             *prometheus.CounterVec
	NotificationsPublished *prometheus.CounterVec
	Reconciled             prometheus.Counter
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// New creates and registers the service metrics on reg.
// Connection gauges are read from src at scrape time.
func New(reg prometheus.Registerer, src ConnectionSource) *Metrics {
	m := &Metrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by outcome.",
		}, []string{"outcome"}),
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "inbound_messages_total",
			Help:      "Inbound client messages by envelope type.",
		}, []string{"type"}),
		Heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "cycles_total",
			Help:      "Heartbeat cycles by result.",
		}, []string{"result"}),
		NotificationsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "notifications_published_total",
			Help:      "Notifications accepted for fan-out by target type.",
		}, []string{"target"}),
		Reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "reconciled_connections_total",
			Help:      "Connections removed after a failed delivery.",
		}),
	}

	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "active_connections",
		Help:      "Number of live connections.",
	}, func() float64 { return float64(src.Metrics().ActiveConnections) })
	authenticated := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "authenticated_connections",
		Help:      "Number of live connections bound to a user identity.",
	}, func() float64 { return float64(src.Metrics().AuthenticatedConnections) })

	reg.MustRegister(m.Deliveries, m.InboundMessages, m.Heartbeats, m.NotificationsPublished, m.Reconciled, active, authenticated)
	return m
}

func (m *Metrics) ObserveDelivery(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReconciled(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Reconciled.Add(float64(n))
}

func (m *Metrics) ObserveInbound(msgType string) {
	if m == nil {
		return
	}
	m.InboundMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) ObserveHeartbeat(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Heartbeats.WithLabelValues(result).Inc()
}

func (m *Metrics) ObservePublished(target string) {
	if m == nil {
		return
	}
	m.NotificationsPublished.WithLabelValues(target).Inc()
}
