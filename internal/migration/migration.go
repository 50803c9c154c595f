package migration

import (
	"context"

	"xelimit/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	for _, step := range r.Steps() {
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			return errors.DatabaseError("failed to "+step.Name, err)
		}
	}
	return nil
}

// Step is one idempotent schema statement.
type Step struct {
	Name string
	SQL  string
}

// Steps lists the schema statements in execution order.
func (r *MigrationRunner) Steps() []Step {
	return []Step{
		{"create limit_results table", createLimitResultsTable},
		{"add limit_results alt_x column", addAltXColumn},
		{"create toy_fits table", createToyFitsTable},
		{"create toy_limits table", createToyLimitsTable},
		{"create indexes", createIndexes},
	}
}

const createLimitResultsTable = `
	CREATE TABLE IF NOT EXISTS limit_results (
		id UUID PRIMARY KEY,
		model_name VARCHAR(255) NOT NULL,
		mass DOUBLE PRECISION NOT NULL,
		confidence_level DOUBLE PRECISION NOT NULL,
		sigma0 DOUBLE PRECISION NOT NULL,
		median_mu DOUBLE PRECISION NOT NULL,
		expected_minus2 DOUBLE PRECISION NOT NULL,
		expected_minus1 DOUBLE PRECISION NOT NULL,
		expected_median DOUBLE PRECISION NOT NULL,
		expected_plus1 DOUBLE PRECISION NOT NULL,
		expected_plus2 DOUBLE PRECISION NOT NULL,
		has_observed BOOLEAN NOT NULL DEFAULT false,
		observed_cls DOUBLE PRECISION,
		observed_cls_found BOOLEAN NOT NULL DEFAULT false,
		observed_no_cls DOUBLE PRECISION,
		observed_no_cls_found BOOLEAN NOT NULL DEFAULT false,
		mu_hat DOUBLE PRECISION,
		asimov_scan JSONB,
		data_scan JSONB,
		sigma_scan JSONB,
		pulls JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`

const addAltXColumn = `
	DO $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'limit_results' AND column_name = 'alt_x'
		) THEN
			ALTER TABLE limit_results ADD COLUMN alt_x DOUBLE PRECISION NOT NULL DEFAULT 0;
		END IF;
	END $$`

const createToyFitsTable = `
	CREATE TABLE IF NOT EXISTS toy_fits (
		batch_id UUID NOT NULL,
		toy_index INTEGER NOT NULL,
		mu DOUBLE PRECISION NOT NULL,
		mu_hat DOUBLE PRECISION NOT NULL,
		q DOUBLE PRECISION NOT NULL,
		q_tilde DOUBLE PRECISION NOT NULL,
		ll_cond DOUBLE PRECISION NOT NULL,
		ll_uncond DOUBLE PRECISION NOT NULL,
		true_params JSONB,
		measured JSONB,
		uncond_params JSONB,
		cond_params JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (batch_id, toy_index, mu)
	)`

const createToyLimitsTable = `
	CREATE TABLE IF NOT EXISTS toy_limits (
		batch_id UUID NOT NULL,
		toy_index INTEGER NOT NULL,
		q0 DOUBLE PRECISION NOT NULL,
		mu_hat DOUBLE PRECISION NOT NULL,
		upper_limit DOUBLE PRECISION NOT NULL,
		interval BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (batch_id, toy_index)
	)`

const createIndexes = `
	CREATE INDEX IF NOT EXISTS idx_limit_results_model_mass ON limit_results(model_name, mass);
	CREATE INDEX IF NOT EXISTS idx_limit_results_created_at ON limit_results(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_toy_fits_batch ON toy_fits(batch_id)`
