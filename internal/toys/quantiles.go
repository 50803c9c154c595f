package toys

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"xelimit/domain/limits"
)

// QuantileCurve is a per-μ quantile of the toy test-statistic distribution.
type QuantileCurve struct {
	Quantile float64
	Mus      []float64
	Values   []float64
}

// At interpolates linearly in μ, holding the end values outside the range.
func (c QuantileCurve) At(mu float64) float64 {
	n := len(c.Mus)
	if n == 0 {
		return 0
	}
	i := sort.SearchFloat64s(c.Mus, mu)
	switch {
	case i == 0:
		return c.Values[0]
	case i == n:
		return c.Values[n-1]
	}
	t := (mu - c.Mus[i-1]) / (c.Mus[i] - c.Mus[i-1])
	return c.Values[i-1] + t*(c.Values[i]-c.Values[i-1])
}

// Summary describes the q̃ distribution at one μ.
type Summary struct {
	Mu     float64 `json:"mu"`
	Toys   int     `json:"toys"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	// ZeroFraction is the share of toys with q̃ = 0.
	ZeroFraction float64 `json:"zero_fraction"`
}

func groupByMu(records []limits.ToyFitRecord) ([]float64, map[float64][]float64) {
	groups := make(map[float64][]float64)
	for _, r := range records {
		groups[r.Mu] = append(groups[r.Mu], r.QTilde)
	}
	mus := make([]float64, 0, len(groups))
	for mu := range groups {
		mus = append(mus, mu)
	}
	sort.Float64s(mus)
	return mus, groups
}

// TSDistributions builds the quantile curve of q̃ from toy fit records.
// quantile is a fraction, 0.9 for the 90th percentile.
func TSDistributions(records []limits.ToyFitRecord, quantile float64) (QuantileCurve, error) {
	if quantile <= 0 || quantile >= 1 {
		return QuantileCurve{}, fmt.Errorf("quantile must be in (0,1), got %g", quantile)
	}
	mus, groups := groupByMu(records)
	if len(mus) == 0 {
		return QuantileCurve{}, fmt.Errorf("no toy fit records")
	}
	curve := QuantileCurve{Quantile: quantile, Mus: mus}
	for _, mu := range mus {
		v, err := stats.Percentile(groups[mu], 100*quantile)
		if err != nil {
			return QuantileCurve{}, fmt.Errorf("mu=%g: %w", mu, err)
		}
		curve.Values = append(curve.Values, v)
	}
	return curve, nil
}

// Summarize describes the q̃ distribution at every tested μ.
func Summarize(records []limits.ToyFitRecord) ([]Summary, error) {
	mus, groups := groupByMu(records)
	out := make([]Summary, 0, len(mus))
	for _, mu := range mus {
		qs := stats.Float64Data(groups[mu])
		mean, err := qs.Mean()
		if err != nil {
			return nil, err
		}
		median, err := qs.Median()
		if err != nil {
			return nil, err
		}
		sd, err := qs.StandardDeviation()
		if err != nil {
			return nil, err
		}
		zeros := 0
		for _, q := range qs {
			if q == 0 {
				zeros++
			}
		}
		out = append(out, Summary{
			Mu:           mu,
			Toys:         len(qs),
			Mean:         mean,
			Median:       median,
			StdDev:       sd,
			ZeroFraction: float64(zeros) / float64(len(qs)),
		})
	}
	return out, nil
}
