package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Domenick1991/airbooking-core/internal/service/booking"
	"github.com/Domenick1991/airbooking-core/internal/service/flights"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Flights flights.FlightUseCase
	Booking booking.BookingUseCase
	Logger  *zap.Logger
	// JWTSecret protects booking routes when set.
	JWTSecret string
	// AuthUsername and AuthPassword enable POST /api/auth/login alongside JWTSecret.
	AuthUsername string
	AuthPassword string
	TokenTTL     time.Duration
	// Ready backs /healthz; nil always reports healthy.
	Ready func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	router.GET("/healthz", func(c *gin.Context) {
		if cfg.Ready != nil {
			if err := cfg.Ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	if cfg.JWTSecret != "" && cfg.AuthPassword != "" {
		NewAuthHandler(cfg.JWTSecret, cfg.AuthUsername, cfg.AuthPassword, cfg.TokenTTL).Register(api.Group("/auth"))
	}
	NewFlightHandler(cfg.Flights).Register(api.Group("/flights"))

	bookings := api.Group("/bookings")
	if cfg.JWTSecret != "" {
		bookings.Use(JWTAuth(cfg.JWTSecret))
	}
	NewBookingHandler(cfg.Booking).Register(bookings)

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("error", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("http request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("http request", fields...)
		default:
			logger.Debug("http request", fields...)
		}
	}
}
