// Package adapters provides the demand data sources the training pipeline
// reads from. Each source retrieves historical demand records from an
// external system and normalizes them into a DemandFrame.
//
// Available sources:
//   - PostgresSource: queries the demand_records table, lag pre-joined in SQL
//   - HTTPSource: calls a REST API and extracts records with gjson paths
//   - FileSource: reads .xlsx or .csv exports
//   - MemorySource: serves a fixed frame, for tests and demos
//
// Sources only pull raw records. Feature construction and model fitting
// happen in the upper layers.
package adapters

import (
	"context"
	"time"
)

// DemandRecord is one historical demand observation.
type DemandRecord struct {
	ProductID string
	Quantity  float64
	CreatedAt time.Time

	// LagQuantity is the quantity observed seven records earlier for the same
	// product. It is only meaningful when the enclosing frame is LagJoined;
	// nil marks a record with no such observation.
	LagQuantity *float64
}

// DemandFrame is an ordered set of demand records returned by a Source.
type DemandFrame struct {
	Records []DemandRecord

	// LagJoined reports that the source already computed LagQuantity per
	// product partition, ordered by CreatedAt.
	LagJoined bool
}

// Source is the interface all demand data sources implement.
//
// Collect is synchronous and should respect context cancellation and
// deadlines. It performs no retries; retry policy belongs to the caller.
type Source interface {
	// Collect returns all demand records ordered by CreatedAt.
	Collect(ctx context.Context) (*DemandFrame, error)

	// Name returns a short, unique identifier for the source.
	// Example: "postgres", "http", "file".
	Name() string
}

// MemorySource serves a fixed frame.
type MemorySource struct {
	Frame DemandFrame
	Err   error
}

func (m *MemorySource) Name() string { return "memory" }

// Collect returns a copy of the configured frame, or the configured error.
func (m *MemorySource) Collect(ctx context.Context) (*DemandFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	records := make([]DemandRecord, len(m.Frame.Records))
	copy(records, m.Frame.Records)
	return &DemandFrame{Records: records, LagJoined: m.Frame.LagJoined}, nil
}

// Float returns a pointer to v, for populating DemandRecord.LagQuantity.
func Float(v float64) *float64 {
	return &v
}
