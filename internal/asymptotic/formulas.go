package asymptotic

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Z is Φ⁻¹(1 − cl), the one-sided Gaussian threshold for confidence level cl.
func Z(cl float64) float64 {
	return distuv.UnitNormal.Quantile(1 - cl)
}

// CLsOffset is N·σ₀ + σ₀·Φ⁻¹(1 − cl·Φ(N)), the CLs-corrected asymptotic
// position of band N.
func CLsOffset(sigma0, cl float64, n float64) float64 {
	return n*sigma0 + sigma0*distuv.UnitNormal.Quantile(1-cl*distuv.UnitNormal.CDF(n))
}

// BandEdge places band N around the median σ₀·Z(cl); the spacing between
// edges follows CLsOffset. BandEdge(σ₀, cl, 0) is exactly σ₀·Z(cl).
func BandEdge(sigma0, cl float64, n float64) float64 {
	median := sigma0 * Z(cl)
	if n == 0 {
		return median
	}
	return median + CLsOffset(sigma0, cl, n) - CLsOffset(sigma0, cl, 0)
}

// PValueSB is the signal-plus-background p-value Φc(√q).
func PValueSB(q float64) float64 {
	return distuv.UnitNormal.Survival(math.Sqrt(math.Max(q, 0)))
}

// PValueB is the background-only confidence Φc(√q − μ/σ_A) that divides
// PValueSB in the CLs construction. Without a usable σ_A it falls back to
// Φc(√q), the same value PValueSB gives.
func PValueB(q, mu, sigmaA float64) float64 {
	if !(sigmaA > 0) {
		return PValueSB(q)
	}
	return distuv.UnitNormal.Survival(math.Sqrt(math.Max(q, 0)) - mu/sigmaA)
}
