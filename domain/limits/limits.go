// Package limits holds the results of sensitivity, limit and toy runs.
package limits

import (
	"time"

	"xelimit/domain/core"
	"xelimit/domain/nuisance"
)

// BandSigmas are the N values of the expected band, in storage order.
var BandSigmas = []int{-2, -1, 0, 1, 2}

// ExpectedBand is the median expected limit with its ±1σ/±2σ edges, in
// cross-section units.
type ExpectedBand struct {
	Minus2 float64 `json:"minus2" db:"expected_minus2"`
	Minus1 float64 `json:"minus1" db:"expected_minus1"`
	Median float64 `json:"median" db:"expected_median"`
	Plus1  float64 `json:"plus1" db:"expected_plus1"`
	Plus2  float64 `json:"plus2" db:"expected_plus2"`
}

// At returns the band edge for N in {-2..2}.
func (b ExpectedBand) At(n int) float64 {
	switch n {
	case -2:
		return b.Minus2
	case -1:
		return b.Minus1
	case 1:
		return b.Plus1
	case 2:
		return b.Plus2
	default:
		return b.Median
	}
}

// Sensitivity is the outcome of an Asimov background-only evaluation.
type Sensitivity struct {
	// Sigma0 is the equivalent Gaussian width in signal-strength units.
	Sigma0 float64 `json:"sigma0"`
	// MedianMu is the median expected limit in signal-strength units.
	MedianMu float64 `json:"median_mu"`
	// ThreeSigmaMu is three times the one-sigma band width in signal-strength units.
	ThreeSigmaMu float64      `json:"three_sigma_mu"`
	Band         ExpectedBand `json:"band"`
}

// ObservedLimit is the data limit in cross-section units. A limit the scan
// never reached has its Found flag unset and holds the upper end of the scan,
// which the true limit exceeds.
type ObservedLimit struct {
	CLs        float64 `json:"cls" db:"observed_cls"`
	CLsFound   bool    `json:"cls_found" db:"observed_cls_found"`
	NoCLs      float64 `json:"no_cls" db:"observed_no_cls"`
	NoCLsFound bool    `json:"no_cls_found" db:"observed_no_cls_found"`
	MuHat      float64 `json:"mu_hat" db:"mu_hat"`
}

// ScanPoint is one evaluated point of a test-statistic or sigma scan.
type ScanPoint struct {
	Mu    float64 `json:"mu"`
	Q     float64 `json:"q"`
	PSB   float64 `json:"p_sb,omitempty"`
	PB    float64 `json:"p_b,omitempty"`
	Sigma float64 `json:"sigma,omitempty"`
}

// Pulls records parameter values before and after a fit.
type Pulls struct {
	Label  string           `json:"label"`
	Before []nuisance.Value `json:"before"`
	After  []nuisance.Value `json:"after"`
}

// Result is everything produced for one mass point.
type Result struct {
	ID          core.RunID    `json:"id"`
	ModelName   string        `json:"model_name"`
	Mass        float64       `json:"mass"`
	AltX        float64       `json:"alt_x,omitempty"`
	CL          float64       `json:"confidence_level"`
	Sensitivity Sensitivity   `json:"sensitivity"`
	Observed    ObservedLimit `json:"observed"`
	HasObserved bool          `json:"has_observed"`
	AsimovScan  []ScanPoint   `json:"asimov_scan,omitempty"`
	DataScan    []ScanPoint   `json:"data_scan,omitempty"`
	SigmaScan   []ScanPoint   `json:"sigma_scan,omitempty"`
	Pulls       []Pulls       `json:"pulls,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ToyFitRecord is the outcome of fitting one toy at one tested μ.
type ToyFitRecord struct {
	BatchID      core.BatchID     `json:"batch_id"`
	ToyIndex     int              `json:"toy_index"`
	Mu           float64          `json:"mu"`
	MuHat        float64          `json:"mu_hat"`
	Q            float64          `json:"q"`
	QTilde       float64          `json:"q_tilde"`
	LLCond       float64          `json:"ll_cond"`
	LLUncond     float64          `json:"ll_uncond"`
	TrueParams   []nuisance.Value `json:"true_params"`
	Measured     []nuisance.Value `json:"measured"`
	UncondParams []nuisance.Value `json:"uncond_params"`
	CondParams   []nuisance.Value `json:"cond_params"`
}

// ToyLimitRecord is the per-toy upper limit found from a quantile curve.
type ToyLimitRecord struct {
	BatchID  core.BatchID `json:"batch_id"`
	ToyIndex int          `json:"toy_index"`
	Q0       float64      `json:"q0"`
	MuHat    float64      `json:"mu_hat"`
	Limit    float64      `json:"limit"`
	Interval bool         `json:"interval"`
}
