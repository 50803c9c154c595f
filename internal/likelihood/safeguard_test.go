package likelihood

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xelimit/domain/core"
	"xelimit/domain/histogram"
	"xelimit/domain/nuisance"
	"xelimit/internal"
)

func randomTemplate(t *testing.T, rng *rand.Rand) *histogram.Hist2D {
	t.Helper()
	ax := histogram.Axis{NBins: 5, Min: 0, Max: 1}
	vals := make([]float64, 25)
	for i := range vals {
		if rng.Float64() < 0.2 {
			continue
		}
		vals[i] = 10 * rng.Float64()
	}
	vals[0] += 0.1
	h, err := histogram.FromValues("r", ax, ax, vals)
	require.NoError(t, err)
	return h
}

func TestBlendConservesProbability(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	m := &Model{
		safeguard: &nuisance.Parameter{Name: SafeguardName},
		log:       internal.DefaultLogger,
	}

	for i := 0; i < 200; i++ {
		guarded := randomTemplate(t, rng)
		sig := randomTemplate(t, rng)
		eps := rng.Float64()
		m.safeguard.Value = eps / safeguardToEpsilon

		out, err := m.blend(guarded, sig, sig.Integral())
		require.NoError(t, err)
		assert.InDelta(t, guarded.Integral(), out.Integral(), 1e-9*guarded.Integral())
	}
}

func TestBlendDetectsBrokenNormalization(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	m := &Model{safeguard: &nuisance.Parameter{Value: 500}, log: internal.DefaultLogger}
	guarded := randomTemplate(t, rng)
	sig := randomTemplate(t, rng)
	before := guarded.Values()

	// a wrong signal integral breaks the ε·Nb/|signal| normalization
	_, err := m.blend(guarded, sig, sig.Integral()/2)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProbabilityNotConserved)
	assert.Equal(t, before, guarded.Values(), "inputs must not be modified")
}

func TestBlendWithEmptySignalIsUnphysical(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 2))
	m := &Model{safeguard: &nuisance.Parameter{Value: 1}, log: internal.DefaultLogger}
	guarded := randomTemplate(t, rng)
	empty := guarded.CloneEmpty("empty")

	for _, total := range []float64{0, -1} {
		out, err := m.blend(guarded, empty, total)
		require.NoError(t, err)
		assert.Nil(t, out)
	}
}
