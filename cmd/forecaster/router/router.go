// Package router configures HTTP routes for the forecaster's HTTP API.
//
// Routes configured:
//   - POST /forecast/ - Predict demand for the next horizon_days days
//   - POST /train/ - Retrain the model from the configured data source
//   - GET /model - Version of the current model artifact
//   - GET /health - Static service health payload
//   - GET /healthz - Liveness check (returns 200 OK)
//   - GET /metrics - Prometheus metrics endpoint
//
// Errors are mapped from pipeline.Classify so every failure kind has exactly
// one status code.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/supplylink/supplylink-ml/pkg/httpx"
	"github.com/supplylink/supplylink-ml/pkg/models"
	"github.com/supplylink/supplylink-ml/pkg/pipeline"
)

const (
	// DefaultHorizonDays is used when a forecast request omits horizon_days.
	DefaultHorizonDays = 30

	// RetryAfterSeconds is advertised to clients while no model exists.
	RetryAfterSeconds = 60

	serviceName = "supplylink-ml"
)

// Trainer runs one training cycle.
type Trainer interface {
	TrainModel(ctx context.Context) (models.Metrics, error)
}

// Predictor serves forecasts from the stored artifact.
type Predictor interface {
	Predict(ctx context.Context, productID, factoryID string, horizonDays int) (pipeline.Forecast, error)
	Refresh(ctx context.Context) (string, error)
}

// Options tunes request validation and timeouts.
type Options struct {
	MaxHorizonDays int
	TrainTimeout   time.Duration
	PredictTimeout time.Duration
	CORSOrigins    []string
	// MetricsHandler serves /metrics. Defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

// ForecastRequest is the body of POST /forecast/.
type ForecastRequest struct {
	ProductID   string `json:"product_id"`
	FactoryID   string `json:"factory_id"`
	HorizonDays int    `json:"horizon_days"`
}

// TrainResponse is the body returned by a successful POST /train/.
type TrainResponse struct {
	Status  string         `json:"status"`
	Metrics models.Metrics `json:"metrics"`
}

// SetupRoutes configures HTTP endpoints for the forecaster and wraps them in
// the recovery, logging and CORS middleware.
func SetupRoutes(trainer Trainer, predictor Predictor, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	mux := http.NewServeMux()

	forecast := handleForecast(predictor, opts, logger)
	mux.HandleFunc("POST /forecast", forecast)
	mux.HandleFunc("POST /forecast/{$}", forecast)

	train := handleTrain(trainer, opts.TrainTimeout, logger)
	mux.HandleFunc("POST /train", train)
	mux.HandleFunc("POST /train/{$}", train)

	mux.HandleFunc("GET /model", handleModel(predictor, opts.PredictTimeout, logger))
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /metrics", opts.MetricsHandler)

	return httpx.Chain(mux,
		httpx.RecoveryMiddleware(logger),
		httpx.LoggingMiddleware(logger),
		httpx.CORSMiddleware(opts.CORSOrigins),
	)
}

func handleForecast(predictor Predictor, opts Options, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := ForecastRequest{HorizonDays: DefaultHorizonDays}
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		if msg := validateForecast(req, opts.MaxHorizonDays); msg != "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, msg)
			return
		}

		ctx, cancel := withTimeout(r.Context(), opts.PredictTimeout)
		defer cancel()

		fc, err := predictor.Predict(ctx, req.ProductID, req.FactoryID, req.HorizonDays)
		if err != nil {
			writePipelineError(w, logger, "forecast", err)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, fc); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func validateForecast(req ForecastRequest, maxHorizon int) string {
	switch {
	case req.ProductID == "":
		return "product_id is required"
	case req.FactoryID == "":
		return "factory_id is required"
	case req.HorizonDays < 0:
		return "horizon_days must not be negative"
	case maxHorizon > 0 && req.HorizonDays > maxHorizon:
		return fmt.Sprintf("horizon_days must not exceed %d", maxHorizon)
	}
	return ""
}

func handleTrain(trainer Trainer, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := withTimeout(r.Context(), timeout)
		defer cancel()

		metrics, err := trainer.TrainModel(ctx)
		if err != nil {
			writePipelineError(w, logger, "train", err)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, TrainResponse{Status: "trained", Metrics: metrics}); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleModel(predictor Predictor, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := withTimeout(r.Context(), timeout)
		defer cancel()

		version, err := predictor.Refresh(ctx)
		if err != nil {
			writePipelineError(w, logger, "model", err)
			return
		}

		if err := httpx.WriteJSON(w, http.StatusOK, map[string]string{"model_version": version}); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

// writePipelineError maps a pipeline error to its HTTP status. Internal
// details are logged, never returned to the client.
func writePipelineError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	kind := pipeline.Classify(err)

	switch kind {
	case pipeline.KindNotFound, pipeline.KindNotTrained:
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "model not ready yet, run training first")
		return
	case pipeline.KindValidation:
		status := http.StatusUnprocessableEntity
		if op == "forecast" {
			status = http.StatusBadRequest
		}
		httpx.WriteError(w, status, err)
		return
	case pipeline.KindBusy:
		httpx.WriteErrorMessage(w, http.StatusConflict, "training already in progress")
		return
	case pipeline.KindDataSource:
		logger.Error(op+" failed", "error", err, "kind", kind.String())
		httpx.WriteErrorMessage(w, http.StatusBadGateway, "demand data source unavailable")
		return
	}

	logger.Error(op+" failed", "error", err, "kind", kind.String())
	httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
