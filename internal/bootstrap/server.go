package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/airbooking-core/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const probeInterval = 10 * time.Second

// ReadyFunc reports whether the process can serve traffic.
type ReadyFunc func(ctx context.Context) error

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server
	ready      ReadyFunc
	logger     *zap.Logger
}

func NewServers(cfg *config.Config, handler http.Handler, ready ReadyFunc, logger *zap.Logger) *Servers {
	grpcSrv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, hs)

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		health: hs,
		ready:  ready,
		logger: logger,
	}
}

// Run starts the gRPC health server and the HTTP API and blocks until ctx is
// canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, handler http.Handler, ready ReadyFunc, logger *zap.Logger) error {
	s := NewServers(cfg, handler, ready, logger)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- s.grpcServer.Serve(lis) }()
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go s.watchHealth(ctx)

	logger.Info("servers started", zap.String("http", cfg.HTTP.Address), zap.String("grpc", cfg.GRPC.Address))

	select {
	case err := <-errCh:
		s.grpcServer.Stop()
		_ = s.httpServer.Close()
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSeconds)*time.Second)
		defer cancel()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info("servers stopped")
		return nil
	}
}

func (s *Servers) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		s.probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// probe updates the overall serving status from the readiness check.
func (s *Servers) probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ready != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.ready(probeCtx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
}
