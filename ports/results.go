package ports

import (
	"context"

	"xelimit/domain/core"
	"xelimit/domain/limits"
)

// ResultWriter writes one output container per mass point.
type ResultWriter interface {
	WriteResult(ctx context.Context, result *limits.Result) (string, error)
}

// ResultFilters for querying stored results
type ResultFilters struct {
	ModelName string
	Limit     int
	Offset    int
}

// ResultRepository stores limit results and toy fit records.
type ResultRepository interface {
	SaveResult(ctx context.Context, result *limits.Result) error
	GetResult(ctx context.Context, id core.RunID) (*limits.Result, error)
	ListResults(ctx context.Context, filters ResultFilters) ([]*limits.Result, error)

	SaveToyFits(ctx context.Context, records []limits.ToyFitRecord) error
	ListToyFits(ctx context.Context, batchID core.BatchID) ([]limits.ToyFitRecord, error)
	SaveToyLimits(ctx context.Context, records []limits.ToyLimitRecord) error
	ListToyLimits(ctx context.Context, batchID core.BatchID) ([]limits.ToyLimitRecord, error)
}
