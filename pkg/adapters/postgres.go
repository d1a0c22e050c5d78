package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// demandQuery reads every demand record with its 7-step lag computed per
// product partition, ordered by creation time.
const demandQuery = `
SELECT
    product_id::text,
    quantity::float8,
    created_at,
    (LAG(quantity, 7) OVER (PARTITION BY product_id ORDER BY created_at))::float8 AS quantity_lag_7
FROM demand_records
ORDER BY created_at`

// PostgresSource reads demand records from the demand_records table.
// The lag feature is computed by the database, so returned frames are LagJoined.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource opens a connection pool using the pgx driver.
// The pool is lazy; the first Collect surfaces connection errors.
func NewPostgresSource(dsn string) (*PostgresSource, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn cannot be empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &PostgresSource{db: db}, nil
}

// NewPostgresSourceFromDB wraps an existing pool.
func NewPostgresSourceFromDB(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (p *PostgresSource) Name() string { return "postgres" }

// Collect runs the lag query and returns all rows, including those without a lag.
func (p *PostgresSource) Collect(ctx context.Context) (*DemandFrame, error) {
	rows, err := p.db.QueryContext(ctx, demandQuery)
	if err != nil {
		return nil, fmt.Errorf("query demand_records: %w", err)
	}
	defer rows.Close()

	var records []DemandRecord
	for rows.Next() {
		var (
			rec DemandRecord
			lag sql.NullFloat64
		)
		if err := rows.Scan(&rec.ProductID, &rec.Quantity, &rec.CreatedAt, &lag); err != nil {
			return nil, fmt.Errorf("scan demand record: %w", err)
		}
		if lag.Valid {
			rec.LagQuantity = Float(lag.Float64)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate demand records: %w", err)
	}

	return &DemandFrame{Records: records, LagJoined: true}, nil
}

// Ping verifies the database is reachable.
func (p *PostgresSource) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the connection pool.
func (p *PostgresSource) Close() error {
	return p.db.Close()
}
