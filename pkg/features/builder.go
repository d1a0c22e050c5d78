// Package features turns demand records into the three-column feature matrix
// the forecast model consumes: day of week, month and the quantity observed
// LagPeriods records earlier for the same product.
package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/supplylink/supplylink-ml/pkg/adapters"
	"github.com/supplylink/supplylink-ml/pkg/models"
)

const (
	// LagPeriods is how many records back, per product, the lag feature looks.
	LagPeriods = 7

	// PlaceholderLag is the lag value used for every horizon row. Future
	// demand is unknown at prediction time.
	PlaceholderLag = 0.0

	// daysPerMonth approximates calendar months when projecting a horizon.
	daysPerMonth = 30
)

// Builder constructs feature frames. The zero value is ready to use.
type Builder struct {
	// Location is the time zone used to derive day of week and month.
	// Nil means UTC.
	Location *time.Location
}

// ForTraining returns the feature rows and targets for every record that has
// a quantity LagPeriods records earlier in its product partition. Rows keep
// the order of frame.Records. Day of week is 0 for Sunday through 6.
//
// When frame.LagJoined is set the records' LagQuantity values are used as-is;
// otherwise the lag is derived here.
func (b Builder) ForTraining(frame adapters.DemandFrame) (models.FeatureFrame, []float64, error) {
	var lags []*float64
	if frame.LagJoined {
		lags = joinedLags(frame.Records)
	} else {
		lags = computeLags(frame.Records)
	}

	out := models.FeatureFrame{Rows: make([]models.FeatureRow, 0, len(frame.Records))}
	y := make([]float64, 0, len(frame.Records))

	for i, rec := range frame.Records {
		if err := checkQuantity("quantity", rec.Quantity); err != nil {
			return models.FeatureFrame{}, nil, fmt.Errorf("record %d (product %s): %w", i, rec.ProductID, err)
		}
		lag := lags[i]
		if lag == nil {
			continue
		}
		if err := checkQuantity("lag quantity", *lag); err != nil {
			return models.FeatureFrame{}, nil, fmt.Errorf("record %d (product %s): %w", i, rec.ProductID, err)
		}

		ts := rec.CreatedAt.In(b.location())
		var row models.FeatureRow
		row[models.ColDayOfWeek] = float64(ts.Weekday())
		row[models.ColMonth] = float64(ts.Month())
		row[models.ColLagQuantity] = *lag

		out.Rows = append(out.Rows, row)
		y = append(y, rec.Quantity)
	}

	return out, y, nil
}

// ForHorizon returns n synthetic rows for days 0..n-1 ahead: day of week is
// i mod 7, month is (i/30) mod 12 + 1 and the lag is PlaceholderLag.
// n <= 0 yields an empty frame.
func (Builder) ForHorizon(n int) models.FeatureFrame {
	if n <= 0 {
		return models.FeatureFrame{}
	}
	rows := make([]models.FeatureRow, n)
	for i := range rows {
		rows[i][models.ColDayOfWeek] = float64(i % 7)
		rows[i][models.ColMonth] = float64((i/daysPerMonth)%12 + 1)
		rows[i][models.ColLagQuantity] = PlaceholderLag
	}
	return models.FeatureFrame{Rows: rows}
}

func (b Builder) location() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

func joinedLags(records []adapters.DemandRecord) []*float64 {
	lags := make([]*float64, len(records))
	for i := range records {
		lags[i] = records[i].LagQuantity
	}
	return lags
}

// computeLags returns, for each record, the quantity LagPeriods records
// earlier among records of the same product ordered by CreatedAt, or nil.
// Records with equal timestamps keep their relative input order.
func computeLags(records []adapters.DemandRecord) []*float64 {
	byProduct := make(map[string][]int)
	for i, rec := range records {
		byProduct[rec.ProductID] = append(byProduct[rec.ProductID], i)
	}

	lags := make([]*float64, len(records))
	for _, idx := range byProduct {
		sort.SliceStable(idx, func(a, b int) bool {
			return records[idx[a]].CreatedAt.Before(records[idx[b]].CreatedAt)
		})
		for pos := LagPeriods; pos < len(idx); pos++ {
			q := records[idx[pos-LagPeriods]].Quantity
			lags[idx[pos]] = &q
		}
	}
	return lags
}

func checkQuantity(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s is not finite", models.ErrValidation, name)
	}
	if v < 0 {
		return fmt.Errorf("%w: %s %v is negative", models.ErrValidation, name, v)
	}
	return nil
}
