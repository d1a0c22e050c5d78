package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/supplylink/supplylink-ml/pkg/features"
	"github.com/supplylink/supplylink-ml/pkg/models"
	"github.com/supplylink/supplylink-ml/pkg/observability"
	"github.com/supplylink/supplylink-ml/pkg/storage"
)

// PredictionDecimals is the number of decimal places predictions are rounded to.
const PredictionDecimals = 2

// exactDigits is enough fractional digits to tell any double near a
// rounding tie from the tie itself.
const exactDigits = 40

// Forecast is the result of one prediction request.
type Forecast struct {
	ProductID    string    `json:"product_id"`
	Predictions  []float64 `json:"predictions"`
	ModelVersion string    `json:"model_version"`
}

// Predictor serves forecasts from the artifact at one path. Every call loads
// the artifact into a private model, so a retrain is visible to the next
// request without a restart.
type Predictor struct {
	store    storage.Store
	path     string
	builder  features.Builder
	recorder Recorder
	logger   *slog.Logger
	onLoaded []func(ctx context.Context, version string)

	mu      sync.RWMutex
	current *models.LinearModel
}

// PredictorOption configures a Predictor.
type PredictorOption func(*Predictor)

// WithPredictorRecorder sets the metrics recorder.
func WithPredictorRecorder(r Recorder) PredictorOption {
	return func(p *Predictor) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithPredictorLogger sets the logger.
func WithPredictorLogger(l *slog.Logger) PredictorOption {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithOnLoaded registers a hook called after every successful artifact load,
// including loads triggered by Predict.
func WithOnLoaded(fn func(ctx context.Context, version string)) PredictorOption {
	return func(p *Predictor) {
		if fn != nil {
			p.onLoaded = append(p.onLoaded, fn)
		}
	}
}

// NewPredictor creates a Predictor reading the artifact at path in store.
func NewPredictor(store storage.Store, path string, opts ...PredictorOption) *Predictor {
	p := &Predictor{
		store:    store,
		path:     path,
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict returns horizonDays rounded predictions from the current artifact.
// productID and factoryID are carried for logging and the response only;
// a single shared model serves every product.
func (p *Predictor) Predict(ctx context.Context, productID, factoryID string, horizonDays int) (fc Forecast, err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.Predict",
		attribute.String("product_id", productID),
		attribute.String("factory_id", factoryID),
		attribute.Int("horizon_days", horizonDays),
	)
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()

	model, err := p.load(ctx)
	if err != nil {
		p.recorder.RecordError("predictor", Classify(err).String())
		return Forecast{}, err
	}

	raw, err := model.Predict(ctx, p.builder.ForHorizon(horizonDays))
	if err != nil {
		p.recorder.RecordError("model", "predict_failed")
		return Forecast{}, fmt.Errorf("predict: %w", err)
	}

	predictions, err := roundAll(raw)
	if err != nil {
		p.recorder.RecordError("model", "non_finite")
		return Forecast{}, err
	}

	duration := time.Since(start)
	p.recorder.RecordPredict(duration.Seconds(), len(predictions))
	span.SetAttributes(attribute.String("model.version", model.Version()))

	p.logger.Debug("prediction complete",
		"product_id", productID,
		"factory_id", factoryID,
		"horizon_days", horizonDays,
		"version", model.Version(),
		"duration_ms", duration.Milliseconds(),
	)

	return Forecast{
		ProductID:    productID,
		Predictions:  predictions,
		ModelVersion: model.Version(),
	}, nil
}

// Refresh loads the current artifact and returns its version.
func (p *Predictor) Refresh(ctx context.Context) (string, error) {
	model, err := p.load(ctx)
	if err != nil {
		return "", err
	}
	return model.Version(), nil
}

// ModelVersion returns the version of the most recently loaded model, or
// ErrNotTrained if this Predictor has not loaded one yet.
func (p *Predictor) ModelVersion() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return "", models.ErrNotTrained
	}
	return p.current.Version(), nil
}

func (p *Predictor) load(ctx context.Context) (*models.LinearModel, error) {
	model := models.NewLinearModel("")
	if err := model.Load(ctx, p.store, p.path); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = model
	p.mu.Unlock()

	for _, fn := range p.onLoaded {
		fn(ctx, model.Version())
	}
	return model, nil
}

// Round rounds v to PredictionDecimals places using the exact binary value
// of v, with exact ties going to the even digit. 2.675 is stored as
// 2.67499... and rounds to 2.67; 0.125 is exact and rounds to 0.12.
// The result is never negative zero.
func Round(v float64) float64 {
	d, err := decimal.NewFromString(strconv.FormatFloat(v, 'f', exactDigits, 64))
	if err != nil {
		return v
	}
	r := d.RoundBank(PredictionDecimals).InexactFloat64()
	if r == 0 {
		return 0
	}
	return r
}

func roundAll(values []float64) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("prediction %d is not finite", i)
		}
		out[i] = Round(v)
	}
	return out, nil
}
