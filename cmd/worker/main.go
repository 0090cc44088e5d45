package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Domenick1991/airbooking-core/config"
	"github.com/Domenick1991/airbooking-core/internal/cache"
	"github.com/Domenick1991/airbooking-core/internal/email"
	"github.com/Domenick1991/airbooking-core/internal/kafka"
	"github.com/Domenick1991/airbooking-core/internal/observability"
	"github.com/Domenick1991/airbooking-core/internal/repository"
	"github.com/Domenick1991/airbooking-core/internal/service/booking"
	"github.com/Domenick1991/airbooking-core/internal/service/flights"
	"github.com/Domenick1991/airbooking-core/internal/service/outbox"
	"github.com/joho/godotenv"
	kafkaGo "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/Domenick1991/airbooking-core/cmd/worker")

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

	cfg.Telemetry.ServiceName += "-worker"
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

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger.Named("kafka"))
	defer producer.Close()
	if err := producer.CheckConnection(ctx); err != nil {
		logger.Warn("kafka not reachable yet", zap.Error(err))
	}

	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.FlightsTTL())
	defer redisCache.Close()

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

	dispatcher := outbox.NewDispatcher(repository.NewOutboxRepository(pool), producer, cfg.Worker.OutboxBatchSize, logger.Named("outbox"))
	sender := email.NewSender(logger.Named("email"))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = dispatcher.Run(ctx, time.Duration(cfg.Worker.OutboxPollSeconds)*time.Second)
	}()

	if cfg.Kafka.NotificationsTopic != "" {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
		defer consumer.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
				ctx = otel.GetTextMapPropagator().Extract(ctx, kafka.NewHeaderCarrier(&msg))
				ctx, span := tracer.Start(ctx, "notifications.consume")
				defer span.End()

				var event kafka.BookingEvent
				if err := json.Unmarshal(msg.Value, &event); err != nil {
					logger.Warn("skip undecodable event", zap.Int64("offset", msg.Offset), zap.Error(err))
					return nil
				}
				return sender.Send(ctx, event)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	}

	expireTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute)
	defer expireTicker.Stop()

	logger.Info("worker started")
	for {
		select {
		case <-expireTicker.C:
			expired, err := bookingService.ExpireStaleReservations(ctx, cfg.Worker.ExpirationBatchSize)
			if err != nil {
				logger.Error("expire reservations", zap.Error(err))
			}
			if expired > 0 {
				logger.Info("expired reservations", zap.Int("count", expired))
			}
		case <-ctx.Done():
			logger.Info("shutting down worker")
			wg.Wait()
			return
		}
	}
}
