package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"notification-hub/internal/realtime"
)

type NotificationHandler struct {
	gateway *realtime.Gateway
	log     zerolog.Logger
}

func NewNotificationHandler(gateway *realtime.Gateway, log zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{gateway: gateway, log: log.With().Str("component", "notifications").Logger()}
}

// Publish handles POST /api/notifications
// Fans a notification out to everyone, one user, or one role.
func (h *NotificationHandler) Publish(c *gin.Context) {
	var req realtime.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification payload"})
		return
	}

	result, err := h.gateway.Publish(c.Request.Context(), req)
	if err != nil {
		var verr *realtime.PublishValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		h.log.Error().Err(err).Msg("publish failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to publish notification"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ConnectionMetrics handles GET /api/connections/metrics
func (h *NotificationHandler) ConnectionMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.gateway.Metrics())
}
