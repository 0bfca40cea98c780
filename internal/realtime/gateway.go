package realtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"notification-hub/internal/metrics"
	"notification-hub/internal/models"
)

// PublishRequest is what business collaborators hand to the gateway.
type PublishRequest struct {
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Category string          `json:"category"`
	Severity models.Severity `json:"severity"`
	Target   models.Selector `json:"target"`
}

// PublishResult counts the connections matched and attempted, not client receipt.
type PublishResult struct {
	NotificationID string `json:"notification_id"`
	DeliveredTo    int    `json:"delivered_to"`
}

// Gateway is the inbound surface for notification publishers.
type Gateway struct {
	broadcaster Broadcaster
	registry    *Registry
	clock       clockwork.Clock
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewGateway creates a gateway. m may be nil.
func NewGateway(b Broadcaster, registry *Registry, clock clockwork.Clock, m *metrics.Metrics, log zerolog.Logger) *Gateway {
	return &Gateway{
		broadcaster: b,
		registry:    registry,
		clock:       clock,
		metrics:     m,
		log:         log.With().Str("component", "gateway").Logger(),
	}
}

// Publish validates the target and fans the notification out. Only
// *PublishValidationError is returned for caller mistakes; per-connection
// failures are absorbed by the engine.
func (g *Gateway) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	target, err := validateTarget(req.Target)
	if err != nil {
		return PublishResult{}, err
	}

	severity := req.Severity
	if severity == "" {
		severity = models.SeverityInfo
	}

	now := g.clock.Now().UTC()
	n := models.Notification{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Message:   req.Message,
		Category:  req.Category,
		Severity:  severity,
		CreatedAt: now,
		Target:    target,
	}

	msg, err := models.NewEnvelope(models.MessageNotification, n, now)
	if err != nil {
		return PublishResult{}, fmt.Errorf("encode notification: %w", err)
	}

	var report Report
	if target.Type == models.TargetEveryone {
		report, err = g.broadcaster.Broadcast(ctx, msg)
	} else {
		report, err = g.broadcaster.DeliverTo(ctx, target, msg)
	}
	if err != nil {
		return PublishResult{}, err
	}

	g.metrics.ObservePublished(string(target.Type))
	g.log.Info().
		Str("notification_id", n.ID).
		Str("target", string(target.Type)).
		Str("target_value", target.Value).
		Int("delivered_to", report.Attempted).
		Int("failed", report.Failed).
		Msg("notification published")

	return PublishResult{NotificationID: n.ID, DeliveredTo: report.Attempted}, nil
}

// Metrics returns connection counts for observability collaborators.
func (g *Gateway) Metrics() models.ConnectionMetrics {
	return g.registry.Metrics()
}

func validateTarget(sel models.Selector) (models.Selector, error) {
	sel.Type = models.TargetType(strings.ToLower(strings.TrimSpace(string(sel.Type))))
	sel.Value = strings.TrimSpace(sel.Value)

	switch sel.Type {
	case models.TargetEveryone:
		return models.Everyone(), nil
	case models.TargetUser, models.TargetRole:
		if sel.Value == "" {
			return models.Selector{}, &PublishValidationError{Field: "target.value", Reason: fmt.Sprintf("required for %q targets", sel.Type)}
		}
		return sel, nil
	case "":
		return models.Selector{}, &PublishValidationError{Field: "target.type", Reason: "required"}
	default:
		return models.Selector{}, &PublishValidationError{Field: "target.type", Reason: fmt.Sprintf("unsupported selector %q", sel.Type)}
	}
}
