package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"xelimit/domain/core"
	"xelimit/domain/limits"
	"xelimit/domain/nuisance"
	apperrors "xelimit/internal/errors"
	"xelimit/ports"

	"github.com/jmoiron/sqlx"
)

const defaultListLimit = 50

// ResultRepositoryImpl implements ResultRepository for PostgreSQL
type ResultRepositoryImpl struct {
	db *sqlx.DB
}

// NewResultRepository creates a new PostgreSQL result repository
func NewResultRepository(db *sqlx.DB) ports.ResultRepository {
	return &ResultRepositoryImpl{db: db}
}

// resultRow mirrors one limit_results row.
type resultRow struct {
	ID                 string          `db:"id"`
	ModelName          string          `db:"model_name"`
	Mass               float64         `db:"mass"`
	AltX               float64         `db:"alt_x"`
	CL                 float64         `db:"confidence_level"`
	Sigma0             float64         `db:"sigma0"`
	MedianMu           float64         `db:"median_mu"`
	Minus2             float64         `db:"expected_minus2"`
	Minus1             float64         `db:"expected_minus1"`
	Median             float64         `db:"expected_median"`
	Plus1              float64         `db:"expected_plus1"`
	Plus2              float64         `db:"expected_plus2"`
	HasObserved        bool            `db:"has_observed"`
	ObservedCLs        sql.NullFloat64 `db:"observed_cls"`
	ObservedCLsFound   bool            `db:"observed_cls_found"`
	ObservedNoCLs      sql.NullFloat64 `db:"observed_no_cls"`
	ObservedNoCLsFound bool            `db:"observed_no_cls_found"`
	MuHat              sql.NullFloat64 `db:"mu_hat"`
	AsimovScan         []byte          `db:"asimov_scan"`
	DataScan           []byte          `db:"data_scan"`
	SigmaScan          []byte          `db:"sigma_scan"`
	Pulls              []byte          `db:"pulls"`
	CreatedAt          time.Time       `db:"created_at"`
}

const resultColumns = `id, model_name, mass, alt_x, confidence_level, sigma0, median_mu,
	expected_minus2, expected_minus1, expected_median, expected_plus1, expected_plus2,
	has_observed, observed_cls, observed_cls_found, observed_no_cls, observed_no_cls_found, mu_hat,
	asimov_scan, data_scan, sigma_scan, pulls, created_at`

func toResultRow(r *limits.Result) (resultRow, error) {
	row := resultRow{
		ID:                 r.ID.String(),
		ModelName:          r.ModelName,
		Mass:               r.Mass,
		AltX:               r.AltX,
		CL:                 r.CL,
		Sigma0:             r.Sensitivity.Sigma0,
		MedianMu:           r.Sensitivity.MedianMu,
		Minus2:             r.Sensitivity.Band.Minus2,
		Minus1:             r.Sensitivity.Band.Minus1,
		Median:             r.Sensitivity.Band.Median,
		Plus1:              r.Sensitivity.Band.Plus1,
		Plus2:              r.Sensitivity.Band.Plus2,
		HasObserved:        r.HasObserved,
		ObservedCLsFound:   r.Observed.CLsFound,
		ObservedNoCLsFound: r.Observed.NoCLsFound,
		CreatedAt:          r.CreatedAt,
	}
	if r.HasObserved {
		row.ObservedCLs = sql.NullFloat64{Float64: r.Observed.CLs, Valid: r.Observed.CLsFound}
		row.ObservedNoCLs = sql.NullFloat64{Float64: r.Observed.NoCLs, Valid: r.Observed.NoCLsFound}
		row.MuHat = sql.NullFloat64{Float64: r.Observed.MuHat, Valid: true}
	}

	var err error
	if row.AsimovScan, err = json.Marshal(r.AsimovScan); err != nil {
		return row, fmt.Errorf("failed to marshal asimov scan: %w", err)
	}
	if row.DataScan, err = json.Marshal(r.DataScan); err != nil {
		return row, fmt.Errorf("failed to marshal data scan: %w", err)
	}
	if row.SigmaScan, err = json.Marshal(r.SigmaScan); err != nil {
		return row, fmt.Errorf("failed to marshal sigma scan: %w", err)
	}
	if row.Pulls, err = json.Marshal(r.Pulls); err != nil {
		return row, fmt.Errorf("failed to marshal pulls: %w", err)
	}
	return row, nil
}

func (row resultRow) toResult() (*limits.Result, error) {
	r := &limits.Result{
		ID:        core.RunID(row.ID),
		ModelName: row.ModelName,
		Mass:      row.Mass,
		AltX:      row.AltX,
		CL:        row.CL,
		Sensitivity: limits.Sensitivity{
			Sigma0:   row.Sigma0,
			MedianMu: row.MedianMu,
			Band: limits.ExpectedBand{
				Minus2: row.Minus2,
				Minus1: row.Minus1,
				Median: row.Median,
				Plus1:  row.Plus1,
				Plus2:  row.Plus2,
			},
		},
		HasObserved: row.HasObserved,
		Observed: limits.ObservedLimit{
			CLs:        row.ObservedCLs.Float64,
			CLsFound:   row.ObservedCLsFound,
			NoCLs:      row.ObservedNoCLs.Float64,
			NoCLsFound: row.ObservedNoCLsFound,
			MuHat:      row.MuHat.Float64,
		},
		CreatedAt: row.CreatedAt,
	}

	for _, f := range []struct {
		name string
		raw  []byte
		dst  interface{}
	}{
		{"asimov_scan", row.AsimovScan, &r.AsimovScan},
		{"data_scan", row.DataScan, &r.DataScan},
		{"sigma_scan", row.SigmaScan, &r.SigmaScan},
		{"pulls", row.Pulls, &r.Pulls},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", f.name, err)
		}
	}
	return r, nil
}

// SaveResult inserts or replaces a limit result
func (r *ResultRepositoryImpl) SaveResult(ctx context.Context, result *limits.Result) error {
	row, err := toResultRow(result)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO limit_results (`+resultColumns+`) VALUES (
			:id, :model_name, :mass, :alt_x, :confidence_level, :sigma0, :median_mu,
			:expected_minus2, :expected_minus1, :expected_median, :expected_plus1, :expected_plus2,
			:has_observed, :observed_cls, :observed_cls_found, :observed_no_cls, :observed_no_cls_found, :mu_hat,
			:asimov_scan, :data_scan, :sigma_scan, :pulls, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			expected_minus2 = EXCLUDED.expected_minus2,
			expected_minus1 = EXCLUDED.expected_minus1,
			expected_median = EXCLUDED.expected_median,
			expected_plus1 = EXCLUDED.expected_plus1,
			expected_plus2 = EXCLUDED.expected_plus2,
			has_observed = EXCLUDED.has_observed,
			observed_cls = EXCLUDED.observed_cls,
			observed_cls_found = EXCLUDED.observed_cls_found,
			observed_no_cls = EXCLUDED.observed_no_cls,
			observed_no_cls_found = EXCLUDED.observed_no_cls_found,
			mu_hat = EXCLUDED.mu_hat,
			asimov_scan = EXCLUDED.asimov_scan,
			data_scan = EXCLUDED.data_scan,
			sigma_scan = EXCLUDED.sigma_scan,
			pulls = EXCLUDED.pulls`, row)
	if err != nil {
		return apperrors.DatabaseError(fmt.Sprintf("failed to save limit result %s", result.ID), err)
	}
	return nil
}

// GetResult retrieves one limit result by ID
func (r *ResultRepositoryImpl) GetResult(ctx context.Context, id core.RunID) (*limits.Result, error) {
	var row resultRow
	err := r.db.GetContext(ctx, &row, `SELECT `+resultColumns+` FROM limit_results WHERE id = $1`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(fmt.Sprintf("limit result %s", id), core.ErrResultNotFound)
	}
	if err != nil {
		return nil, apperrors.DatabaseError(fmt.Sprintf("failed to get limit result %s", id), err)
	}
	return row.toResult()
}

// ListResults lists results newest first, optionally for one model
func (r *ResultRepositoryImpl) ListResults(ctx context.Context, filters ports.ResultFilters) ([]*limits.Result, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var rows []resultRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+resultColumns+` FROM limit_results
		WHERE ($1 = '' OR model_name = $1)
		ORDER BY model_name, mass, created_at DESC
		LIMIT $2 OFFSET $3`, filters.ModelName, limit, filters.Offset)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list limit results", err)
	}

	out := make([]*limits.Result, 0, len(rows))
	for _, row := range rows {
		res, err := row.toResult()
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// toyFitRow mirrors one toy_fits row.
type toyFitRow struct {
	BatchID      string  `db:"batch_id"`
	ToyIndex     int     `db:"toy_index"`
	Mu           float64 `db:"mu"`
	MuHat        float64 `db:"mu_hat"`
	Q            float64 `db:"q"`
	QTilde       float64 `db:"q_tilde"`
	LLCond       float64 `db:"ll_cond"`
	LLUncond     float64 `db:"ll_uncond"`
	TrueParams   []byte  `db:"true_params"`
	Measured     []byte  `db:"measured"`
	UncondParams []byte  `db:"uncond_params"`
	CondParams   []byte  `db:"cond_params"`
}

func toToyFitRow(rec limits.ToyFitRecord) (toyFitRow, error) {
	row := toyFitRow{
		BatchID:  rec.BatchID.String(),
		ToyIndex: rec.ToyIndex,
		Mu:       rec.Mu,
		MuHat:    rec.MuHat,
		Q:        rec.Q,
		QTilde:   rec.QTilde,
		LLCond:   rec.LLCond,
		LLUncond: rec.LLUncond,
	}
	for _, f := range []struct {
		name string
		src  []nuisance.Value
		dst  *[]byte
	}{
		{"true_params", rec.TrueParams, &row.TrueParams},
		{"measured", rec.Measured, &row.Measured},
		{"uncond_params", rec.UncondParams, &row.UncondParams},
		{"cond_params", rec.CondParams, &row.CondParams},
	} {
		b, err := json.Marshal(f.src)
		if err != nil {
			return row, fmt.Errorf("toy %d at mu=%g: failed to marshal %s: %w", rec.ToyIndex, rec.Mu, f.name, err)
		}
		*f.dst = b
	}
	return row, nil
}

func (row toyFitRow) toRecord() (limits.ToyFitRecord, error) {
	rec := limits.ToyFitRecord{
		BatchID:  core.BatchID(row.BatchID),
		ToyIndex: row.ToyIndex,
		Mu:       row.Mu,
		MuHat:    row.MuHat,
		Q:        row.Q,
		QTilde:   row.QTilde,
		LLCond:   row.LLCond,
		LLUncond: row.LLUncond,
	}
	for _, f := range []struct {
		raw []byte
		dst *[]nuisance.Value
	}{
		{row.TrueParams, &rec.TrueParams},
		{row.Measured, &rec.Measured},
		{row.UncondParams, &rec.UncondParams},
		{row.CondParams, &rec.CondParams},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return rec, fmt.Errorf("failed to unmarshal toy parameters: %w", err)
		}
	}
	return rec, nil
}

// SaveToyFits inserts a batch of toy fit records in one transaction
func (r *ResultRepositoryImpl) SaveToyFits(ctx context.Context, records []limits.ToyFitRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO toy_fits (
			batch_id, toy_index, mu, mu_hat, q, q_tilde, ll_cond, ll_uncond,
			true_params, measured, uncond_params, cond_params
		) VALUES (
			:batch_id, :toy_index, :mu, :mu_hat, :q, :q_tilde, :ll_cond, :ll_uncond,
			:true_params, :measured, :uncond_params, :cond_params)
		ON CONFLICT (batch_id, toy_index, mu) DO NOTHING`)
	if err != nil {
		return apperrors.DatabaseError("failed to prepare toy fit insert", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		row, err := toToyFitRow(rec)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return apperrors.DatabaseError(fmt.Sprintf("failed to save toy %d at mu=%g", rec.ToyIndex, rec.Mu), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError("failed to commit toy fits", err)
	}
	return nil
}

// ListToyFits returns the records of one batch ordered by toy and μ
func (r *ResultRepositoryImpl) ListToyFits(ctx context.Context, batchID core.BatchID) ([]limits.ToyFitRecord, error) {
	var rows []toyFitRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT batch_id, toy_index, mu, mu_hat, q, q_tilde, ll_cond, ll_uncond,
			true_params, measured, uncond_params, cond_params
		FROM toy_fits WHERE batch_id = $1
		ORDER BY toy_index, mu`, batchID.String())
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list toy fits", err)
	}
	out := make([]limits.ToyFitRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveToyLimits inserts per-toy upper limits
func (r *ResultRepositoryImpl) SaveToyLimits(ctx context.Context, records []limits.ToyLimitRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO toy_limits (batch_id, toy_index, q0, mu_hat, upper_limit, interval)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (batch_id, toy_index) DO UPDATE SET
				q0 = EXCLUDED.q0,
				mu_hat = EXCLUDED.mu_hat,
				upper_limit = EXCLUDED.upper_limit,
				interval = EXCLUDED.interval`,
			rec.BatchID.String(), rec.ToyIndex, rec.Q0, rec.MuHat, rec.Limit, rec.Interval)
		if err != nil {
			return apperrors.DatabaseError(fmt.Sprintf("failed to save limit of toy %d", rec.ToyIndex), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError("failed to commit toy limits", err)
	}
	return nil
}

// ListToyLimits returns the per-toy limits of one batch
func (r *ResultRepositoryImpl) ListToyLimits(ctx context.Context, batchID core.BatchID) ([]limits.ToyLimitRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT toy_index, q0, mu_hat, upper_limit, interval
		FROM toy_limits WHERE batch_id = $1 ORDER BY toy_index`, batchID.String())
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list toy limits", err)
	}
	defer rows.Close()

	var out []limits.ToyLimitRecord
	for rows.Next() {
		rec := limits.ToyLimitRecord{BatchID: batchID}
		if err := rows.Scan(&rec.ToyIndex, &rec.Q0, &rec.MuHat, &rec.Limit, &rec.Interval); err != nil {
			return nil, apperrors.DatabaseError("failed to scan toy limit", err)
		}
			out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("failed to read toy limits", err)
	}
	return out, nil
}
