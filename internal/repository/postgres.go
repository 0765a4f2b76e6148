package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"landiq/internal/model"
)

const valuationColumns = `
	id, property_description, location, acreage, irrigated, tillable, crop_type,
	p10, p50, p90, total_value, price_per_acre, confidence, narrative,
	key_factors, comparable_sales, sources, created_at, updated_at`

// ValuationRepository handles database operations for valuations
type ValuationRepository struct {
	db *sqlx.DB
}

// NewValuationRepository creates a new PostgreSQL-backed repository
func NewValuationRepository(dsn string, maxConn, maxIdleConn int) (*ValuationRepository, error) {
	// Disable prepared statement caching to avoid "unnamed prepared statement does not exist" errors
	if !strings.Contains(dsn, "?") {
		dsn += "?prefer_simple_protocol=true"
	} else {
		dsn += "&prefer_simple_protocol=true"
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &ValuationRepository{db: db}, nil
}

// Close closes the database connection
func (r *ValuationRepository) Close() error {
	return r.db.Close()
}

// EnsureSchema creates the valuations table when it does not exist yet
func (r *ValuationRepository) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS valuations (
		id SERIAL PRIMARY KEY,
		property_description TEXT NOT NULL,
		location TEXT NOT NULL,
		acreage TEXT NOT NULL,
		irrigated BOOLEAN NOT NULL DEFAULT FALSE,
		tillable BOOLEAN NOT NULL DEFAULT FALSE,
		crop_type TEXT,
		p10 DOUBLE PRECISION NOT NULL,
		p50 DOUBLE PRECISION NOT NULL,
		p90 DOUBLE PRECISION NOT NULL,
		total_value DOUBLE PRECISION NOT NULL,
		price_per_acre DOUBLE PRECISION NOT NULL,
		confidence TEXT NOT NULL,
		narrative TEXT NOT NULL,
		key_factors JSONB,
		comparable_sales JSONB,
		sources JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return &model.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// CreateValuation inserts one valuation row and returns it with the assigned
// id and timestamps
func (r *ValuationRepository) CreateValuation(ctx context.Context, v *model.Valuation) (*model.Valuation, error) {
	query := `
		INSERT INTO valuations (
			property_description, location, acreage, irrigated, tillable, crop_type,
			p10, p50, p90, total_value, price_per_acre, confidence, narrative,
			key_factors, comparable_sales, sources
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`

	row := r.db.QueryRowxContext(ctx, query,
		v.PropertyDescription, v.Location, v.Acreage, v.Irrigated, v.Tillable, v.CropType,
		v.P10, v.P50, v.P90, v.TotalValue, v.PricePerAcre, v.Confidence, v.Narrative,
		v.KeyFactors, v.ComparableSales, v.Sources,
	)
	if err := row.Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, &model.StorageError{Op: "create valuation", Err: err}
	}

	return v, nil
}

// GetValuation retrieves one valuation by id, returning (nil, nil) when no
// row matches
func (r *ValuationRepository) GetValuation(ctx context.Context, id int64) (*model.Valuation, error) {
	var v model.Valuation
	query := fmt.Sprintf(`SELECT %s FROM valuations WHERE id = $1`, valuationColumns)

	err := r.db.GetContext(ctx, &v, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &model.StorageError{Op: "get valuation", Err: err}
	}
	return &v, nil
}

// GetRecentValuations returns up to limit rows ordered by creation time
// descending
func (r *ValuationRepository) GetRecentValuations(ctx context.Context, limit int) ([]model.Valuation, error) {
	valuations := []model.Valuation{}
	query := fmt.Sprintf(`
		SELECT %s FROM valuations
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, valuationColumns)

	if err := r.db.SelectContext(ctx, &valuations, query, limit); err != nil {
		return nil, &model.StorageError{Op: "get recent valuations", Err: err}
	}
	return valuations, nil
}

// GetValuationsByLocation returns up to limit rows whose location exactly
// equals the argument, most recent first
func (r *ValuationRepository) GetValuationsByLocation(ctx context.Context, location string, limit int) ([]model.Valuation, error) {
	valuations := []model.Valuation{}
	query := fmt.Sprintf(`
		SELECT %s FROM valuations
		WHERE location = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, valuationColumns)

	if err := r.db.SelectContext(ctx, &valuations, query, location, limit); err != nil {
		return nil, &model.StorageError{Op: "get valuations by location", Err: err}
	}
	return valuations, nil
}
