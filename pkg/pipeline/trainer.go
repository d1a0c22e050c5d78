// Package pipeline orchestrates training and prediction:
//
//	Trainer:   collect → build features → train fresh model → save artifact
//	Predictor: load artifact → build horizon features → predict → round
//
// Both are instrumented with a Recorder and OpenTelemetry spans. Errors wrap
// the sentinels in pkg/models, pkg/storage and this package; Classify maps
// them to a Kind for transports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/supplylink/supplylink-ml/pkg/adapters"
	"github.com/supplylink/supplylink-ml/pkg/features"
	"github.com/supplylink/supplylink-ml/pkg/models"
	"github.com/supplylink/supplylink-ml/pkg/observability"
	"github.com/supplylink/supplylink-ml/pkg/storage"
)

const (
	// DefaultMinTrainingRows is the minimum number of usable feature rows.
	DefaultMinTrainingRows = 10

	// DefaultLockTTL bounds how long a crashed trainer can hold the writer lock.
	DefaultLockTTL = 10 * time.Minute
)

// TrainedHook is called after every successful training run.
type TrainedHook func(ctx context.Context, m models.Metrics)

// Trainer runs the training pipeline against one source and one artifact path.
type Trainer struct {
	source   adapters.Source
	store    storage.Store
	path     string
	builder  features.Builder
	version  string
	minRows  int
	locker   storage.Locker
	lockTTL  time.Duration
	recorder Recorder
	logger   *slog.Logger
	hooks    []TrainedHook
}

// TrainerOption configures a Trainer.
type TrainerOption func(*Trainer)

// WithModelVersion sets the version stamped on trained artifacts.
func WithModelVersion(v string) TrainerOption {
	return func(t *Trainer) { t.version = v }
}

// WithMinTrainingRows overrides DefaultMinTrainingRows. Values below 1 are ignored.
func WithMinTrainingRows(n int) TrainerOption {
	return func(t *Trainer) {
		if n >= 1 {
			t.minRows = n
		}
	}
}

// WithLocker sets the artifact writer lock and its TTL.
func WithLocker(l storage.Locker, ttl time.Duration) TrainerOption {
	return func(t *Trainer) {
		t.locker = l
		if ttl > 0 {
			t.lockTTL = ttl
		}
	}
}

// WithFeatureBuilder replaces the default feature builder.
func WithFeatureBuilder(b features.Builder) TrainerOption {
	return func(t *Trainer) { t.builder = b }
}

// WithTrainerRecorder sets the metrics recorder.
func WithTrainerRecorder(r Recorder) TrainerOption {
	return func(t *Trainer) {
		if r != nil {
			t.recorder = r
		}
	}
}

// WithTrainerLogger sets the logger.
func WithTrainerLogger(l *slog.Logger) TrainerOption {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// OnTrained registers hooks run after each successful training.
func OnTrained(hooks ...TrainedHook) TrainerOption {
	return func(t *Trainer) { t.hooks = append(t.hooks, hooks...) }
}

// NewTrainer creates a Trainer that writes its artifact to path in store.
// Without WithLocker, an in-process lock serializes writers.
func NewTrainer(source adapters.Source, store storage.Store, path string, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		source:   source,
		store:    store,
		path:     path,
		version:  models.DefaultVersion,
		minRows:  DefaultMinTrainingRows,
		locker:   storage.NewMemoryLocker(),
		lockTTL:  DefaultLockTTL,
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Path returns the artifact path the trainer writes.
func (t *Trainer) Path() string { return t.path }

// Run trains once immediately and then on every interval tick.
// Failures are logged. Blocks until ctx is canceled.
func (t *Trainer) Run(ctx context.Context, interval time.Duration) error {
	t.logger.Info("starting training loop", "interval", interval, "source", t.source.Name())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := t.TrainModel(ctx); err != nil {
		t.logger.Error("initial training failed", "error", err, "kind", Classify(err))
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("training loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := t.TrainModel(ctx); err != nil {
				t.logger.Error("scheduled training failed", "error", err, "kind", Classify(err))
			}
		}
	}
}

// TrainModel runs one training cycle and overwrites the artifact on success.
// Nothing is written when any step fails.
func (t *Trainer) TrainModel(ctx context.Context) (metrics models.Metrics, err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.TrainModel",
		attribute.String("artifact.path", t.path),
		attribute.String("source", t.source.Name()),
	)
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()

	unlock, err := t.locker.Acquire(ctx, "train:"+t.path, t.lockTTL)
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			t.recorder.RecordError("trainer", "lock_busy")
			return models.Metrics{}, fmt.Errorf("training already in progress: %w", err)
		}
		t.recorder.RecordError("trainer", "lock_failed")
		return models.Metrics{}, fmt.Errorf("acquire writer lock: %w", err)
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			t.logger.Warn("release writer lock failed", "error", uerr)
		}
	}()

	frame, err := t.collect(ctx)
	if err != nil {
		t.recorder.RecordError("adapter", "collect_failed")
		return models.Metrics{}, fmt.Errorf("%w: %s: %w", ErrDataSource, t.source.Name(), err)
	}

	x, y, err := t.builder.ForTraining(*frame)
	if err != nil {
		t.recorder.RecordError("features", "build_failed")
		return models.Metrics{}, fmt.Errorf("build features: %w", err)
	}
	t.logger.Debug("built training features", "records", len(frame.Records), "rows", x.Len())

	if x.Len() < t.minRows {
		t.recorder.RecordError("trainer", "insufficient_data")
		return models.Metrics{}, fmt.Errorf("%w: insufficient training data: %d usable rows, need at least %d",
			models.ErrValidation, x.Len(), t.minRows)
	}

	model := models.NewLinearModel(t.version)
	metrics, err = model.Train(ctx, x, y)
	if err != nil {
		t.recorder.RecordError("model", "train_failed")
		return models.Metrics{}, fmt.Errorf("train: %w", err)
	}

	if err := model.Save(ctx, t.store, t.path); err != nil {
		t.recorder.RecordError("store", "put_failed")
		return models.Metrics{}, fmt.Errorf("save model: %w", err)
	}

	duration := time.Since(start)
	t.recorder.RecordTrain(duration.Seconds(), metrics)
	span.SetAttributes(
		attribute.Int("train.samples", metrics.Samples),
		attribute.Float64("train.r2_score", metrics.R2Score),
		attribute.String("model.version", metrics.Version),
		attribute.String("model.run_id", model.RunID()),
	)

	t.logger.Info("training complete",
		"path", t.path,
		"version", metrics.Version,
		"run_id", model.RunID(),
		"samples", metrics.Samples,
		"r2_score", metrics.R2Score,
		"duration_ms", duration.Milliseconds(),
	)

	for _, hook := range t.hooks {
		hook(ctx, metrics)
	}

	return metrics, nil
}

func (t *Trainer) collect(ctx context.Context) (*adapters.DemandFrame, error) {
	start := time.Now()

	frame, err := t.source.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, errors.New("source returned no frame")
	}

	duration := time.Since(start)
	t.recorder.RecordCollect(duration.Seconds(), len(frame.Records))

	t.logger.Info("collected demand records",
		"source", t.source.Name(),
		"records", len(frame.Records),
		"lag_joined", frame.LagJoined,
		"duration_ms", duration.Milliseconds(),
	)
	return frame, nil
}
