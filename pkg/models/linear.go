package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/supplylink/supplylink-ml/pkg/storage"
)

// LinearModel is an ordinary least squares regression over FeatureRows.
//
// A model starts untrained and becomes trained through Train or Load; there is
// no way back other than constructing a new model. Training never touches
// storage: persisting the fitted state is an explicit Save.
//
// LinearModel is safe for concurrent use, but the forecasting pipeline gives
// every request its own instance and shares state only through the artifact.
type LinearModel struct {
	mu        sync.RWMutex
	version   string
	trained   bool
	intercept float64
	coef      [NumFeatures]float64
	samples   int
	r2        float64
	runID     string
	trainedAt time.Time
}

// NewLinearModel creates an untrained model that will tag its artifacts with
// version. An empty version falls back to DefaultVersion.
func NewLinearModel(version string) *LinearModel {
	if version == "" {
		version = DefaultVersion
	}
	return &LinearModel{version: version}
}

// Name returns the model identifier.
func (m *LinearModel) Name() string {
	return "linear"
}

// Train fits the model to X and y and returns fit metrics on the training set.
//
// Returns ErrValidation if X and y differ in length, are empty, or contain
// non-finite values.
func (m *LinearModel) Train(ctx context.Context, x FeatureFrame, y []float64) (Metrics, error) {
	if ctx.Err() != nil {
		return Metrics{}, ctx.Err()
	}
	if len(x.Rows) != len(y) {
		return Metrics{}, fmt.Errorf("%w: %d feature rows but %d targets", ErrValidation, len(x.Rows), len(y))
	}
	if len(y) == 0 {
		return Metrics{}, fmt.Errorf("%w: no training samples", ErrValidation)
	}
	for i, row := range x.Rows {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Metrics{}, fmt.Errorf("%w: feature[%d][%d] is not finite", ErrValidation, i, j)
			}
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return Metrics{}, fmt.Errorf("%w: target[%d] is not finite", ErrValidation, i)
		}
	}

	intercept, coef := fitOLS(x.Rows, y)

	pred := make([]float64, len(x.Rows))
	for i, row := range x.Rows {
		pred[i] = apply(intercept, coef, row)
	}
	score := r2Score(y, pred)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.intercept = intercept
	m.coef = coef
	m.samples = len(y)
	m.r2 = score
	m.runID = uuid.NewString()
	m.trainedAt = time.Now().UTC()
	m.trained = true

	return Metrics{
		R2Score: score,
		Samples: len(y),
		Version: m.version,
	}, nil
}

// Predict returns one raw prediction per row of x, in input order.
// Returns ErrNotTrained if the model has neither been trained nor loaded.
func (m *LinearModel) Predict(ctx context.Context, x FeatureFrame) ([]float64, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return nil, ErrNotTrained
	}

	out := make([]float64, len(x.Rows))
	for i, row := range x.Rows {
		out[i] = apply(m.intercept, m.coef, row)
	}
	return out, nil
}

func apply(intercept float64, coef [NumFeatures]float64, row FeatureRow) float64 {
	v := intercept
	for j := range row {
		v += coef[j] * row[j]
	}
	return v
}

// Save writes the model artifact to path in store.
func (m *LinearModel) Save(ctx context.Context, store storage.Store, path string) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	if err := store.Put(ctx, path, data); err != nil {
		return fmt.Errorf("save model artifact %q: %w", path, err)
	}
	return nil
}

// Load replaces the model state with the artifact stored at path.
//
// Returns ErrArtifactNotFound if nothing is stored there and
// ErrArtifactCorrupt if the artifact cannot be decoded. On failure the
// model keeps its previous state.
func (m *LinearModel) Load(ctx context.Context, store storage.Store, path string) error {
	data, err := store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w at %s", ErrArtifactNotFound, path)
		}
		return fmt.Errorf("load model artifact %q: %w", path, err)
	}
	return m.UnmarshalBinary(data)
}

// MarshalBinary encodes the trained model as an artifact.
func (m *LinearModel) MarshalBinary() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return nil, ErrNotTrained
	}

	return encodeArtifact(artifact{
		Version:      m.version,
		Intercept:    m.intercept,
		Coefficients: m.coef,
		Samples:      m.samples,
		R2Score:      m.r2,
		RunID:        m.runID,
		TrainedAt:    m.trainedAt,
	})
}

// UnmarshalBinary decodes an artifact produced by MarshalBinary.
// Any decoding failure is reported as ErrArtifactCorrupt.
func (m *LinearModel) UnmarshalBinary(data []byte) error {
	a, err := decodeArtifact(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.version = a.Version
	m.intercept = a.Intercept
	m.coef = a.Coefficients
	m.samples = a.Samples
	m.r2 = a.R2Score
	m.runID = a.RunID
	m.trainedAt = a.TrainedAt
	m.trained = true
	return nil
}

// Version returns the semantic version carried by the model.
func (m *LinearModel) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Trained reports whether the model can predict.
func (m *LinearModel) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// Coefficients returns the fitted intercept and per-feature coefficients.
func (m *LinearModel) Coefficients() (float64, [NumFeatures]float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.intercept, m.coef
}

// RunID identifies the training run that produced the current state.
func (m *LinearModel) RunID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runID
}

// TrainedAt returns when the current state was fitted.
func (m *LinearModel) TrainedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trainedAt
}
