package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"notification-hub/internal/metrics"
	"notification-hub/internal/models"
)

const defaultDeliveryTimeout = 5 * time.Second

// Report summarises one fan-out.
type Report struct {
	// Attempted is the number of connections matched at the start of the fan-out.
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Broadcaster is the fan-out surface the heartbeat and gateway depend on.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg models.Envelope) (Report, error)
	DeliverTo(ctx context.Context, sel models.Selector, msg models.Envelope) (Report, error)
}

// EngineConfig tunes delivery.
type EngineConfig struct {
	// DeliveryTimeout bounds each per-connection write.
	DeliveryTimeout time.Duration
	// MaxParallel caps concurrent writes per fan-out; zero means unbounded.
	MaxParallel int
}

// Engine delivers messages to a snapshot of the registry and removes the
// connections whose delivery failed once every attempt has finished.
type Engine struct {
	registry *Registry
	metrics  *metrics.Metrics
	log      zerolog.Logger
	cfg      EngineConfig
}

var _ Broadcaster = (*Engine)(nil)

// NewEngine creates a broadcast engine over registry. m may be nil.
func NewEngine(registry *Registry, cfg EngineConfig, m *metrics.Metrics, log zerolog.Logger) *Engine {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	return &Engine{
		registry: registry,
		metrics:  m,
		log:      log.With().Str("component", "broadcast").Logger(),
		cfg:      cfg,
	}
}

// Broadcast delivers msg to every live connection.
func (e *Engine) Broadcast(ctx context.Context, msg models.Envelope) (Report, error) {
	return e.deliver(ctx, e.registry.Snapshot(), msg)
}

// DeliverTo delivers msg to the connections sel matches right now.
// A selector matching nobody is a successful no-op.
func (e *Engine) DeliverTo(ctx context.Context, sel models.Selector, msg models.Envelope) (Report, error) {
	targets, err := e.registry.Select(sel)
	if err != nil {
		return Report{}, err
	}
	return e.deliver(ctx, targets, msg)
}

func (e *Engine) deliver(ctx context.Context, targets []Connection, msg models.Envelope) (Report, error) {
	report := Report{Attempted: len(targets)}
	if len(targets) == 0 {
		return report, nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return Report{}, fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}

	// Cancelling the caller (an HTTP request, shutdown) must not make every
	// client look dead, so attempts only observe their own timeout.
	attemptCtx := context.WithoutCancel(ctx)

	results := make([]error, len(targets))
	var g errgroup.Group
	if e.cfg.MaxParallel > 0 {
		g.SetLimit(e.cfg.MaxParallel)
	}
	for i, c := range targets {
		g.Go(func() error {
			results[i] = e.attempt(attemptCtx, c, data)
			return nil
		})
	}
	_ = g.Wait()

	// Reconcile only after the fan-out: removals never race the iteration above.
	removed := 0
	for i, c := range targets {
		if results[i] == nil {
			report.Delivered++
			e.metrics.ObserveDelivery(metrics.OutcomeDelivered)
			// The connection may have gone away since the write.
			_ = e.registry.Touch(c.ID)
			continue
		}

		report.Failed++
		if errors.Is(results[i], ErrDeliveryTimeout) {
			e.metrics.ObserveDelivery(metrics.OutcomeTimeout)
		} else {
			e.metrics.ObserveDelivery(metrics.OutcomeFailed)
		}
		if e.registry.Unregister(c.ID) {
			removed++
		}
		if c.Transport != nil {
			_ = c.Transport.Close()
		}
		e.log.Debug().Err(results[i]).Str("conn_id", c.ID.String()).Str("type", string(msg.Type)).Msg("dropping connection after failed delivery")
	}
	e.metrics.ObserveReconciled(removed)

	if report.Failed > 0 {
		e.log.Info().
			Str("type", string(msg.Type)).
			Int("attempted", report.Attempted).
			Int("failed", report.Failed).
			Msg("fan-out finished with failures")
	}
	return report, nil
}

// attempt performs exactly one bounded write to c.
func (e *Engine) attempt(ctx context.Context, c Connection, data []byte) error {
	if c.Transport == nil {
		return fmt.Errorf("%w: no transport", ErrDeliveryFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.DeliveryTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Transport.Send(ctx, data) }()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrDeliveryTimeout
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	case <-ctx.Done():
		return ErrDeliveryTimeout
	}
}
