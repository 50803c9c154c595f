package ports

import "context"

// FitParameter is one coordinate of the vector handed to a Maximizer.
type FitParameter struct {
	Name  string
	Start float64
	Step  float64
	Min   float64
	Max   float64
}

// Objective is evaluated at a point inside the declared bounds. A returned
// error aborts the fit.
type Objective func(x []float64) (float64, error)

// FitResult is the best point found.
type FitResult struct {
	Max         float64
	X           []float64
	Evaluations int
	Converged   bool
}

// Maximizer finds the maximum of an objective over a bounded box. It must
// never evaluate the objective outside [Min, Max] on any coordinate.
type Maximizer interface {
	Maximize(ctx context.Context, params []FitParameter, f Objective) (FitResult, error)
}
