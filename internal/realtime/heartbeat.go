package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"notification-hub/internal/metrics"
	"notification-hub/internal/models"
)

// DefaultHeartbeatInterval is used when no interval is configured.
const DefaultHeartbeatInterval = 60 * time.Second

// Heartbeat periodically broadcasts a system_status message.
type Heartbeat struct {
	broadcaster Broadcaster
	registry    *Registry
	clock       clockwork.Clock
	interval    time.Duration
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewHeartbeat creates a heartbeat publisher. m may be nil.
func NewHeartbeat(b Broadcaster, registry *Registry, interval time.Duration, clock clockwork.Clock, m *metrics.Metrics, log zerolog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{
		broadcaster: b,
		registry:    registry,
		clock:       clock,
		interval:    interval,
		metrics:     m,
		log:         log.With().Str("component", "heartbeat").Logger(),
	}
}

// Run publishes on every tick until ctx is cancelled. A failed cycle is logged
// and the loop carries on.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.Info().Dur("interval", h.interval).Msg("heartbeat started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("heartbeat stopped")
			return nil
		case <-ticker.Chan():
			if err := h.beat(ctx); err != nil {
				h.metrics.ObserveHeartbeat(false)
				h.log.Error().Err(err).Msg("heartbeat cycle failed")
				continue
			}
			h.metrics.ObserveHeartbeat(true)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("heartbeat panic: %v", r)
		}
	}()

	counts := h.registry.Metrics()
	now := h.clock.Now()
	msg, err := models.NewEnvelope(models.MessageSystemStatus, models.SystemStatus{
		ActiveConnections:        counts.ActiveConnections,
		AuthenticatedConnections: counts.AuthenticatedConnections,
		Healthy:                  true,
		ServerTime:               now.UTC(),
	}, now)
	if err != nil {
		return err
	}

	report, err := h.broadcaster.Broadcast(ctx, msg)
	if err != nil {
		return err
	}
	h.log.Debug().Int("attempted", report.Attempted).Int("failed", report.Failed).Msg("heartbeat published")
	return nil
}
