package main

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/supplylink/supplylink-ml/pkg/models"
)

// forecastService is the gRPC health service name reporting model readiness.
const forecastService = "supplylink.forecast"

// readinessInterval is how often the artifact is reloaded to refresh the
// forecast service status.
const readinessInterval = 30 * time.Second

// modelHealth publishes model readiness on the standard gRPC health service.
// The process itself is always SERVING; forecastService turns SERVING once
// an artifact can be loaded.
type modelHealth struct {
	server *health.Server
	logger *slog.Logger
}

func newModelHealth(logger *slog.Logger) *modelHealth {
	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(forecastService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &modelHealth{server: hs, logger: logger}
}

// markReady is registered as a training hook.
func (h *modelHealth) markReady(ctx context.Context, m models.Metrics) {
	h.markLoaded(ctx, m.Version)
}

// markLoaded is registered as a predictor load hook, so artifacts written
// by the trainer command or another replica also flip readiness.
func (h *modelHealth) markLoaded(_ context.Context, version string) {
	h.server.SetServingStatus(forecastService, grpc_health_v1.HealthCheckResponse_SERVING)
	h.logger.Debug("forecast service serving", "version", version)
}

func (h *modelHealth) markNotReady(err error) {
	h.server.SetServingStatus(forecastService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	h.logger.Debug("forecast service not serving", "error", err)
}

// watch reloads the artifact every interval until ctx is done. A successful
// load marks the service ready through the load hook; a failed one marks it
// not ready.
func (h *modelHealth) watch(ctx context.Context, refresh func(context.Context) (string, error), interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				h.markNotReady(err)
			}
		}
	}
}

func (h *modelHealth) shutdown() {
	h.server.Shutdown()
}

// newGRPCServer registers the health and reflection services.
func newGRPCServer(h *modelHealth, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	grpc_health_v1.RegisterHealthServer(srv, h.server)
	reflection.Register(srv)
	return srv
}

func serveGRPC(srv *grpc.Server, addr string, logger *slog.Logger) (net.Addr, <-chan error, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("grpc health server listening", "address", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()
	return lis.Addr(), errCh, nil
}
