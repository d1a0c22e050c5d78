// Package models provides the demand forecasting model: a linear regression
// estimator over calendar and lag features, together with the versioned
// artifact format used to persist it between training and prediction.
package models

// Feature column indices of a FeatureRow.
const (
	ColDayOfWeek = iota
	ColMonth
	ColLagQuantity

	// NumFeatures is the fixed width of a feature row.
	NumFeatures
)

// DefaultVersion is the semantic version tagged onto artifacts when none is configured.
const DefaultVersion = "1.0.0"

// FeatureRow is one model input: day of week (0 = Sunday), month (1-12)
// and the quantity observed seven periods earlier.
type FeatureRow [NumFeatures]float64

// FeatureFrame is an ordered feature matrix.
type FeatureFrame struct {
	Rows []FeatureRow
}

// Len returns the number of rows in the frame.
func (f FeatureFrame) Len() int {
	return len(f.Rows)
}

// Metrics summarizes a training run.
type Metrics struct {
	R2Score float64 `json:"r2_score"`
	Samples int     `json:"samples"`
	Version string  `json:"version"`
}
