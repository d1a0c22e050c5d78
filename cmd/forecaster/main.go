// Command forecaster serves SupplyLink demand forecasts over HTTP.
//
// The forecaster:
//  1. Collects historical demand records from the configured data source
//  2. Trains a linear regression on calendar and 7-step lag features
//  3. Persists the model artifact to the configured store
//  4. Serves horizon forecasts from the latest artifact
//
// HTTP API (default :8000):
//   - POST /forecast/ - Predict demand for the next horizon_days days
//   - POST /train/ - Retrain the model
//   - GET /model - Current model version
//   - GET /health, GET /healthz - Health checks
//   - GET /metrics - Prometheus metrics endpoint
//
// Usage:
//
//	forecaster \
//	  -source=postgres \
//	  -database-url=postgres://supplylink:secret@db:5432/supplylink \
//	  -storage=file -model-path=./models \
//	  -retrain-interval=24h
//
// Environment variables mirror the flags in upper snake case (SOURCE,
// DATABASE_URL, MODEL_PATH, RETRAIN_INTERVAL, ...). ADAPTER_* variables
// configure the data source, for example ADAPTER_URL for the http source.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/supplylink/supplylink-ml/cmd/forecaster/router"
	"github.com/supplylink/supplylink-ml/internal/config"
	"github.com/supplylink/supplylink-ml/internal/logger"
	"github.com/supplylink/supplylink-ml/internal/metrics"
	"github.com/supplylink/supplylink-ml/internal/source"
	"github.com/supplylink/supplylink-ml/internal/store"
	"github.com/supplylink/supplylink-ml/pkg/httpx"
	"github.com/supplylink/supplylink-ml/pkg/observability"
	"github.com/supplylink/supplylink-ml/pkg/pipeline"
	"github.com/supplylink/supplylink-ml/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting supplylink-ml forecaster",
		"version", version,
		"listen", cfg.Listen,
		"source", cfg.Source,
		"storage", cfg.Storage,
		"model_file", cfg.ModelFile,
		"tls_enabled", cfg.TLS.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, "supplylink-ml", observability.TracingConfig{
		Exporter:    cfg.TraceExporter,
		Endpoint:    cfg.TraceEndpoint,
		Insecure:    cfg.TraceInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	backend, err := store.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create artifact store", "error", err)
		os.Exit(1)
	}

	src, err := source.New(cfg, log)
	if err != nil {
		log.Error("failed to create data source", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	modelHealth := newModelHealth(log)

	trainer := pipeline.NewTrainer(src, backend.Store, cfg.ModelFile,
		pipeline.WithModelVersion(cfg.ModelVersion),
		pipeline.WithMinTrainingRows(cfg.MinTrainingRows),
		pipeline.WithLocker(backend.Locker, pipeline.DefaultLockTTL),
		pipeline.WithTrainerRecorder(m),
		pipeline.WithTrainerLogger(log),
		pipeline.OnTrained(modelHealth.markReady),
	)
	predictor := pipeline.NewPredictor(backend.Store, cfg.ModelFile,
		pipeline.WithPredictorRecorder(m),
		pipeline.WithPredictorLogger(log),
		pipeline.WithOnLoaded(modelHealth.markLoaded),
	)

	if v, err := predictor.Refresh(ctx); err == nil {
		log.Info("loaded model artifact", "version", v)
	} else {
		log.Warn("no usable model artifact yet", "error", err, "kind", pipeline.Classify(err))
	}

	handler := router.SetupRoutes(trainer, predictor, router.Options{
		MaxHorizonDays: cfg.MaxHorizonDays,
		TrainTimeout:   cfg.TrainTimeout,
		PredictTimeout: cfg.PredictTimeout,
		CORSOrigins:    cfg.CORSOrigins,
	}, log)
	httpServer := httpx.NewServer(cfg.Listen, handler, cfg.TrainTimeout+10*time.Second, log)

	var grpcOpts []grpc.ServerOption
	if cfg.TLS.Enabled {
		tlsConfig, err := tls.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			log.Error("failed to create TLS config", "error", err)
			os.Exit(1)
		}
		httpServer.SetTLSConfig(tlsConfig)
		grpcOpts = append(grpcOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	serverErr := make(chan error, 2)
	go func() {
		if cfg.TLS.Enabled {
			serverErr <- httpServer.StartTLS("", "")
			return
		}
		serverErr <- httpServer.Start()
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCListen != "" {
		grpcServer = newGRPCServer(modelHealth, grpcOpts...)
		_, grpcErr, err := serveGRPC(grpcServer, cfg.GRPCListen, log)
		if err != nil {
			log.Error("failed to listen", "address", cfg.GRPCListen, "error", err)
			os.Exit(1)
		}
		go func() { serverErr <- <-grpcErr }()
		go modelHealth.watch(ctx, predictor.Refresh, readinessInterval)
	}

	switch {
	case cfg.RetrainInterval > 0:
		go func() {
			if err := trainer.Run(ctx, cfg.RetrainInterval); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("retrain loop failed", "error", err)
			}
		}()
	case cfg.TrainOnStart:
		go func() {
			tctx, tcancel := context.WithTimeout(ctx, cfg.TrainTimeout)
			defer tcancel()
			if _, err := trainer.TrainModel(tctx); err != nil {
				log.Error("startup training failed", "error", err, "kind", pipeline.Classify(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
			exitCode = 1
		}
	}

	log.Info("shutting down")
	cancel()

	modelHealth.shutdown()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		exitCode = 1
	}

	if closer, ok := src.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Error("failed to close data source", "error", err)
		}
	}
	if err := backend.Close(); err != nil {
		log.Error("failed to close store", "error", err)
	}

	tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer tcancel()
	if err := shutdownTracing(tctx); err != nil {
		log.Error("failed to flush traces", "error", err)
	}

	log.Info("shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
