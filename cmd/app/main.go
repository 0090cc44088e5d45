package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/airbooking-core/api"
	"github.com/Domenick1991/airbooking-core/config"
	"github.com/Domenick1991/airbooking-core/internal/bootstrap"
	"github.com/Domenick1991/airbooking-core/internal/cache"
	"github.com/Domenick1991/airbooking-core/internal/observability"
	"github.com/Domenick1991/airbooking-core/internal/repository"
	"github.com/Domenick1991/airbooking-core/internal/service/booking"
	"github.com/Domenick1991/airbooking-core/internal/service/flights"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	pool, err := repository.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Database.ApplySchema {
		if err := repository.ApplySchema(ctx, pool); err != nil {
			logger.Fatal("apply schema", zap.Error(err))
		}
	}

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.FlightsTTL())
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, flight lookups go to postgres", zap.Error(err))
	}

	flightService := flights.NewFlightService(repository.NewFlightRepository(pool), redisCache, logger.Named("flights"))
	bookingService := booking.NewBookingService(
		repository.NewStore(pool),
		repository.NewBookingRepository(pool),
		flightService,
		logger.Named("booking"),
		booking.WithEventsTopic(cfg.Kafka.BookingEventsTopic),
		booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		booking.WithMaxAttempts(cfg.Booking.MaxCommitAttempts),
		booking.WithHoldTTL(cfg.Booking.HoldTTL()),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		Flights:      flightService,
		Booking:      bookingService,
		Logger:       logger.Named("http"),
		JWTSecret:    cfg.Auth.JWTSecret,
		AuthUsername: cfg.Auth.Username,
		AuthPassword: cfg.Auth.Password,
		TokenTTL:     cfg.Auth.TokenTTL(),
		Ready:        pool.Ping,
	})

	if err := bootstrap.Run(ctx, cfg, router, pool.Ping, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
