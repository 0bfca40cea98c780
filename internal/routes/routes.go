package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"notification-hub/internal/handlers"
	"notification-hub/internal/metrics"
	"notification-hub/internal/middleware"
	"notification-hub/internal/models"
)

// Dependencies are the handlers and collaborators the router exposes.
type Dependencies struct {
	Auth          *handlers.AuthHandler
	Notifications *handlers.NotificationHandler
	WebSocket     *handlers.WebSocketHandler
	Tokens        middleware.TokenValidator
	Metrics       *prometheus.Registry
	Logger        zerolog.Logger
}

func SetupRoutes(deps Dependencies) *gin.Engine {
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery(), middleware.RequestLogger(deps.Logger))

	// CORS middleware (for frontend integration)
	ginRouter.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Notification hub is running",
		})
	})

	if deps.Metrics != nil {
		ginRouter.GET("/metrics", gin.WrapH(metrics.Handler(deps.Metrics)))
	}

	// Socket clients authenticate with an auth message after connecting
	ginRouter.GET("/ws", deps.WebSocket.Serve)

	api := ginRouter.Group("/api")
	{
		api.POST("/login", deps.Auth.Login)
	}

	protectedRoutes := api.Group("")
	protectedRoutes.Use(middleware.JWTAuthMiddleware(deps.Tokens))
	{
		protectedRoutes.GET("/connections/metrics", deps.Notifications.ConnectionMetrics)
		protectedRoutes.POST("/notifications",
			middleware.RequireRole(models.RoleAdmin, models.RolePublisher),
			deps.Notifications.Publish)
	}

	return ginRouter
}
