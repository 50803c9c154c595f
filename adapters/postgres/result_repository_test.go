package postgres

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xelimit/domain/core"
	"xelimit/domain/limits"
	"xelimit/domain/nuisance"
	apperrors "xelimit/internal/errors"
)

func TestResultRowWithoutObservedLeavesNulls(t *testing.T) {
	res := &limits.Result{
		ID:        core.NewRunID(),
		ModelName: "xe",
		Mass:      50,
		CL:        0.1,
		Sensitivity: limits.Sensitivity{
			Sigma0: 0.4,
			Band:   limits.ExpectedBand{Minus2: 1, Minus1: 2, Median: 3, Plus1: 4, Plus2: 5},
		},
		CreatedAt: time.Now().UTC(),
	}

	row, err := toResultRow(res)
	require.NoError(t, err)
	assert.False(t, row.ObservedCLs.Valid)
	assert.False(t, row.MuHat.Valid)
	assert.Equal(t, "null", string(row.DataScan))

	back, err := row.toResult()
	require.NoError(t, err)
	assert.Equal(t, res.Sensitivity.Band, back.Sensitivity.Band)
	assert.Nil(t, back.DataScan)
	assert.False(t, back.HasObserved)
}

func TestResultRowKeepsObservedAndScans(t *testing.T) {
	res := &limits.Result{
		ID:          core.NewRunID(),
		ModelName:   "xe",
		Mass:        10,
		HasObserved: true,
		Observed:    limits.ObservedLimit{CLs: 2e-45, CLsFound: true, NoCLsFound: false, MuHat: 0.3},
		AsimovScan:  []limits.ScanPoint{{Mu: 0, Q: 0}, {Mu: 1, Q: 2.7, PSB: 0.05, PB: 0.5}},
		Pulls: []limits.Pulls{{
			Label:  "data",
			Before: []nuisance.Value{{Name: "Leff", Value: 0}},
			After:  []nuisance.Value{{Name: "Leff", Value: 0.2}},
		}},
	}

	row, err := toResultRow(res)
	require.NoError(t, err)
	assert.True(t, row.ObservedCLs.Valid)
	assert.False(t, row.ObservedNoCLs.Valid)

	back, err := row.toResult()
	require.NoError(t, err)
	assert.Equal(t, res.Observed, back.Observed)
	assert.Equal(t, res.AsimovScan, back.AsimovScan)
	assert.Equal(t, res.Pulls, back.Pulls)
}

func TestToyFitRowConversion(t *testing.T) {
	rec := limits.ToyFitRecord{
		BatchID:    core.NewBatchID(),
		ToyIndex:   3,
		Mu:         1.5,
		QTilde:     0.8,
		TrueParams: []nuisance.Value{{Name: "ERNorm", Value: 0.1}},
	}
	row, err := toToyFitRow(rec)
	require.NoError(t, err)
	back, err := row.toRecord()
	require.NoError(t, err)
	assert.Equal(t, rec.BatchID, back.BatchID)
	assert.Equal(t, rec.TrueParams, back.TrueParams)
	assert.Nil(t, back.CondParams)
}

func TestResultRowRejectsBadJSON(t *testing.T) {
	row := resultRow{ID: "x", Pulls: []byte("{")}
	_, err := row.toResult()
	assert.ErrorContains(t, err, "pulls")
}

func TestToyFitRowRejectsUnencodableParameters(t *testing.T) {
	rec := limits.ToyFitRecord{
		ToyIndex:   7,
		Mu:         2,
		CondParams: []nuisance.Value{{Name: "Sigma", Value: math.NaN()}},
	}
	_, err := toToyFitRow(rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cond_params")
	assert.Contains(t, err.Error(), "toy 7")
}

func newMockRepository(t *testing.T) (*ResultRepositoryImpl, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &ResultRepositoryImpl{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestGetResultErrors(t *testing.T) {
	id := core.NewRunID()
	tests := []struct {
		name  string
		setup func(sqlmock.Sqlmock)
		code  string
		is    error
	}{
		{
			name: "missing row",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("FROM limit_results WHERE id").WithArgs(id.String()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
			},
			code: apperrors.CodeNotFound,
			is:   core.ErrNotFound,
		},
		{
			name: "driver failure",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("FROM limit_results WHERE id").WithArgs(id.String()).
					WillReturnError(errors.New("connection reset"))
			},
			code: apperrors.CodeDatabaseError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepository(t)
			tt.setup(mock)

			_, err := repo.GetResult(context.Background(), id)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListToyLimitsDatabaseError(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("FROM toy_limits").WithArgs("b1").WillReturnError(errors.New("relation does not exist"))

	_, err := repo.ListToyLimits(context.Background(), core.BatchID("b1"))
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
	assert.ErrorContains(t, err, "relation does not exist")
}

func TestListToyLimitsScansRows(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery("FROM toy_limits").WithArgs("b1").WillReturnRows(
		sqlmock.NewRows([]string{"toy_index", "q0", "mu_hat", "upper_limit", "interval"}).
			AddRow(0, 0.0, -0.4, 2.3, false).
			AddRow(1, 3.1, 1.2, 4.8, true))

	got, err := repo.ListToyLimits(context.Background(), core.BatchID("b1"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.BatchID("b1"), got[1].BatchID)
	assert.Equal(t, 4.8, got[1].Limit)
	assert.True(t, got[1].Interval)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveToyFitsRollsBackOnBadRecord(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO toy_fits")
	mock.ExpectRollback()

	err := repo.SaveToyFits(context.Background(), []limits.ToyFitRecord{
		{BatchID: "b1", ToyIndex: 0, Mu: 1, Measured: []nuisance.Value{{Name: "ERNorm", Value: math.Inf(1)}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "measured")
	assert.NoError(t, mock.ExpectationsWereMet())
}
