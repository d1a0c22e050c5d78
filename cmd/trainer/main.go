// Command trainer runs one training cycle and exits.
//
// It is meant for cron jobs and job queues that retrain the shared model
// artifact out of band. It accepts the same flags and environment variables
// as the forecaster; HTTP and gRPC settings are ignored.
//
// Usage:
//
//	trainer -source=postgres -database-url=postgres://... -storage=redis -lock=redis
//
// On success the training metrics are written to stdout as JSON.
//
// Exit codes:
//
//	0 - model trained and saved
//	1 - unexpected failure (store, encoding, ...)
//	2 - invalid configuration
//	3 - data source unavailable
//	4 - training data rejected (too few rows, invalid values)
//	5 - another training run holds the writer lock
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/supplylink/supplylink-ml/internal/config"
	"github.com/supplylink/supplylink-ml/internal/logger"
	"github.com/supplylink/supplylink-ml/internal/metrics"
	"github.com/supplylink/supplylink-ml/internal/source"
	"github.com/supplylink/supplylink-ml/internal/store"
	"github.com/supplylink/supplylink-ml/pkg/observability"
	"github.com/supplylink/supplylink-ml/pkg/pipeline"
)

const (
	exitOK = iota
	exitInternal
	exitConfig
	exitDataSource
	exitRejected
	exitBusy
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return exitConfig
	}

	log := logger.NewWithWriter(stderr, cfg.LogLevel, cfg.LogFormat)
	log.Info("starting supplylink-ml trainer", "version", version, "source", cfg.Source, "storage", cfg.Storage)

	shutdownTracing, err := observability.InitTracing(ctx, "supplylink-ml-trainer", observability.TracingConfig{
		Exporter:    cfg.TraceExporter,
		Endpoint:    cfg.TraceEndpoint,
		Insecure:    cfg.TraceInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		return exitConfig
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			log.Error("failed to flush traces", "error", err)
		}
	}()

	backend, err := store.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create artifact store", "error", err)
		return exitInternal
	}
	defer backend.Close()

	src, err := source.New(cfg, log)
	if err != nil {
		log.Error("failed to create data source", "error", err)
		return exitConfig
	}
	if closer, ok := src.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	trainer := pipeline.NewTrainer(src, backend.Store, cfg.ModelFile,
		pipeline.WithModelVersion(cfg.ModelVersion),
		pipeline.WithMinTrainingRows(cfg.MinTrainingRows),
		pipeline.WithLocker(backend.Locker, pipeline.DefaultLockTTL),
		pipeline.WithTrainerRecorder(metrics.New(prometheus.NewRegistry())),
		pipeline.WithTrainerLogger(log),
	)

	tctx, cancel := context.WithTimeout(ctx, cfg.TrainTimeout)
	defer cancel()

	result, err := trainer.TrainModel(tctx)
	if err != nil {
		kind := pipeline.Classify(err)
		log.Error("training failed", "error", err, "kind", kind)
		return exitCode(kind)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Error("failed to write metrics", "error", err)
		return exitInternal
	}
	return exitOK
}

func exitCode(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindOK:
		return exitOK
	case pipeline.KindDataSource:
		return exitDataSource
	case pipeline.KindValidation:
		return exitRejected
	case pipeline.KindBusy:
		return exitBusy
	default:
		return exitInternal
	}
}
