package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"notification-hub/internal/models"
)

type fixedSource models.ConnectionMetrics

func (f fixedSource) Metrics() models.ConnectionMetrics { return models.ConnectionMetrics(f) }

func TestNew_GaugesReadSource(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, fixedSource{ActiveConnections: 3, AuthenticatedConnections: 2})

	count, err := testutil.GatherAndCount(reg,
		"notification_hub_registry_active_connections",
		"notification_hub_registry_authenticated_connections",
	)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		if f.GetMetric()[0].GetGauge() != nil {
			values[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	require.Equal(t, 3.0, values["notification_hub_registry_active_connections"])
	require.Equal(t, 2.0, values["notification_hub_registry_authenticated_connections"])
}

func TestObserve_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, fixedSource{})

	m.ObserveDelivery(OutcomeDelivered)
	m.ObserveDelivery(OutcomeDelivered)
	m.ObserveDelivery(OutcomeTimeout)
	m.ObserveReconciled(1)
	m.ObserveHeartbeat(false)
	m.ObserveInbound("ping")
	m.ObservePublished("user")

	require.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(OutcomeDelivered)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(OutcomeTimeout)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Reconciled))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Heartbeats.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.InboundMessages.WithLabelValues("ping")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsPublished.WithLabelValues("user")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveDelivery(OutcomeFailed)
		m.ObserveReconciled(2)
		m.ObserveInbound("auth")
		m.ObserveHeartbeat(true)
		m.ObservePublished("everyone")
	})
}
