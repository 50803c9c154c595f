// Package fit adapts gonum's optimizers to the bounded Maximizer port.
package fit

import (
	"context"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/optimize"

	"xelimit/ports"
)

// Config tunes the Nelder-Mead search.
type Config struct {
	// Tolerance is the absolute change in the objective below which the fit
	// counts as converged.
	Tolerance float64
	// StallIterations is how many iterations without improvement end the fit.
	StallIterations int
	// MaxEvaluations caps objective calls per pass.
	MaxEvaluations int
	// Restarts reruns the simplex from the best point with a smaller size.
	Restarts int
	// SimplexSize is the initial simplex edge in transformed coordinates.
	SimplexSize float64
}

// DefaultConfig returns settings suited to likelihood fits with a handful
// of nuisance parameters.
func DefaultConfig() Config {
	return Config{
		Tolerance:       1e-10,
		StallIterations: 60,
		MaxEvaluations:  20000,
		Restarts:        2,
		SimplexSize:     0.1,
	}
}

// NelderMead maximizes by minimizing the negated objective over
// sine-transformed coordinates, which keep every evaluation inside the bounds.
type NelderMead struct {
	cfg Config
}

func NewNelderMead(cfg Config) *NelderMead {
	return &NelderMead{cfg: cfg}
}

var _ ports.Maximizer = (*NelderMead)(nil)

func (n *NelderMead) Maximize(ctx context.Context, params []ports.FitParameter, f ports.Objective) (ports.FitResult, error) {
	if err := ctx.Err(); err != nil {
		return ports.FitResult{}, err
	}

	if len(params) == 0 {
		v, err := f(nil)
		if err != nil {
			return ports.FitResult{}, err
		}
		return ports.FitResult{Max: v, X: []float64{}, Evaluations: 1, Converged: true}, nil
	}

	bounds := make([]bound, len(params))
	u := make([]float64, len(params))
	for i, p := range params {
		if p.Min > p.Max {
			return ports.FitResult{}, fmt.Errorf("parameter %s has inverted bounds [%g, %g]", p.Name, p.Min, p.Max)
		}
		bounds[i] = bound{min: p.Min, max: p.Max}
		u[i] = bounds[i].toInternal(p.Start)
	}

	var (
		evalErr error
		evals   int
		bestX   = make([]float64, len(params))
		bestF   = math.Inf(-1)
	)
	x := make([]float64, len(params))
	problem := optimize.Problem{
		Func: func(ui []float64) float64 {
			if evalErr != nil {
				return penalty
			}
			if err := ctx.Err(); err != nil {
				evalErr = err
				return penalty
			}
			for i, b := range bounds {
				x[i] = b.toExternal(ui[i])
			}
			v, err := f(x)
			evals++
			if err != nil {
				evalErr = err
				return penalty
			}
			if math.IsNaN(v) {
				return penalty
			}
			if v > bestF {
				bestF = v
				copy(bestX, x)
			}
			return -v
		},
	}

	size := n.cfg.SimplexSize
	converged := false
	for pass := 0; pass <= n.cfg.Restarts; pass++ {
		settings := &optimize.Settings{
			FuncEvaluations: n.cfg.MaxEvaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   n.cfg.Tolerance,
				Iterations: n.cfg.StallIterations,
			},
		}
		res, err := optimize.Minimize(problem, u, settings, &optimize.NelderMead{SimplexSize: size})
		if evalErr != nil {
			return ports.FitResult{}, evalErr
		}
		if err != nil && res == nil {
			return ports.FitResult{}, fmt.Errorf("nelder-mead: %w", err)
		}
		if err != nil {
			log.Printf("[Fit] Nelder-Mead pass %d ended with %v (status %v)", pass, err, res.Status)
		}
		copy(u, res.X)
		converged = res.Status == optimize.FunctionConvergence || res.Status == optimize.Success
		size /= 10
	}

	if math.IsInf(bestF, -1) {
		return ports.FitResult{}, fmt.Errorf("nelder-mead: no finite objective value in %d evaluations", evals)
	}
	return ports.FitResult{Max: bestF, X: bestX, Evaluations: evals, Converged: converged}, nil
}

// penalty stands in for evaluations that must not influence the search.
const penalty = 1e30

// bound maps an unbounded internal coordinate onto [min, max].
type bound struct {
	min, max float64
}

func (b bound) unbounded() bool {
	return math.IsInf(b.min, -1) && math.IsInf(b.max, 1)
}

func (b bound) toExternal(u float64) float64 {
	if b.unbounded() {
		return u
	}
	if b.max == b.min {
		return b.min
	}
	x := b.min + (b.max-b.min)*(math.Sin(u)+1)/2
	return math.Max(b.min, math.Min(b.max, x))
}

func (b bound) toInternal(x float64) float64 {
	if b.unbounded() {
		return x
	}
	if b.max == b.min {
		return 0
	}
	r := 2*(x-b.min)/(b.max-b.min) - 1
	return math.Asin(math.Max(-1, math.Min(1, r)))
}
