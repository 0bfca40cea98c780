package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"notification-hub/internal/auth"
	"notification-hub/internal/config"
	"notification-hub/internal/database"
	"notification-hub/internal/datasource"
	"notification-hub/internal/handlers"
	"notification-hub/internal/logging"
	"notification-hub/internal/metrics"
	"notification-hub/internal/models"
	"notification-hub/internal/realtime"
	"notification-hub/internal/routes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	users := database.NewUserRepository(db)
	if cfg.AdminPassword != "" {
		created, err := users.EnsureUser(ctx, cfg.AdminUsername, cfg.AdminPassword, models.RoleAdmin)
		if err != nil {
			return err
		}
		if created {
			log.Info().Str("username", cfg.AdminUsername).Msg("seeded admin user")
		}
	}

	clock := clockwork.NewRealClock()
	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)

	registry := realtime.NewRegistry(clock, log)
	promRegistry := metrics.NewRegistry()
	m := metrics.New(promRegistry, registry)

	engine := realtime.NewEngine(registry, realtime.EngineConfig{
		DeliveryTimeout: cfg.DeliveryTimeout,
		MaxParallel:     cfg.MaxParallelDeliveries,
	}, m, log)
	dispatcher := realtime.NewDispatcher(registry,
		realtime.TokenResolver{Tokens: tokens, RequireToken: cfg.WSRequireToken},
		datasource.New(registry, users, cfg.DataCacheTTL),
		clock, m, log)
	gateway := realtime.NewGateway(engine, registry, clock, m, log)
	heartbeat := realtime.NewHeartbeat(engine, registry, cfg.HeartbeatInterval, clock, m, log)

	gin.SetMode(gin.ReleaseMode)
	router := routes.SetupRoutes(routes.Dependencies{
		Auth:          handlers.NewAuthHandler(users, tokens, log),
		Notifications: handlers.NewNotificationHandler(gateway, log),
		WebSocket: handlers.NewWebSocketHandler(dispatcher, handlers.SocketConfig{
			ReadLimit:    cfg.WSReadLimit,
			PongWait:     cfg.WSPongWait,
			PingInterval: cfg.WSPingInterval,
		}, log),
		Tokens:  tokens,
		Metrics: promRegistry,
		Logger:  log,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return heartbeat.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		log.Info().Msg("shutting down")
		err := srv.Shutdown(shutdownCtx)
		// Hijacked websocket connections are not tracked by the HTTP server.
		registry.Drain()
		return err
	})

	return g.Wait()
}
