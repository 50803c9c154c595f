package pdf

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"xelimit/adapters/templatestore"
	"xelimit/domain/core"
	"xelimit/domain/histogram"
	"xelimit/domain/nuisance"
)

var unit = histogram.Axis{NBins: 2, Min: 0, Max: 1}

func constant(t *testing.T, v float64) *histogram.Hist2D {
	t.Helper()
	h, err := histogram.FromValues("c", unit, unit, []float64{v, v, v, v})
	require.NoError(t, err)
	return h
}

func TestNameKeyer(t *testing.T) {
	k := NameKeyer{Base: "bkg", Suffix: "_v2"}
	key := k.Key([]Coordinate{{Name: "Leff", Value: 1}, {Name: "Qy", Value: -0.5}, {Name: "Z", Value: 0}})
	assert.Equal(t, "bkgLeff1.00Qy-0.50Z0.00_v2", key)

	negZero := k.Key([]Coordinate{{Name: "Leff", Value: -1e-9}})
	assert.Equal(t, "bkgLeff0.00_v2", negZero)

	assert.Equal(t, "s(1.00,-0.50)", TupleKeyer{Prefix: "s"}.Key([]Coordinate{{Value: 1}, {Value: -0.5}}))
}

func TestCornerWeightsSumToOne(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for k := 0; k <= 4; k++ {
		t.Run(fmt.Sprintf("K=%d", k), func(t *testing.T) {
			c := NewComponent("bkg", "bkg", templatestore.NewMemoryStore())
			for i := 0; i < k; i++ {
				s := nuisance.NewShapeSystematic(fmt.Sprintf("s%d", i))
				s.Step = 0.5
				s.Min, s.Max = -2, 2
				require.NoError(t, c.AddShape(s))
			}
			for trial := 0; trial < 50; trial++ {
				for _, s := range c.Shapes() {
					s.Value = -2 + 4*rng.Float64()
				}
				corners, err := c.Corners()
				require.NoError(t, err)
				require.Len(t, corners, 1<<k)

				w := make([]float64, len(corners))
				for i, cr := range corners {
					w[i] = cr.Weight
					assert.GreaterOrEqual(t, cr.Weight, 0.0)
				}
				assert.InDelta(t, 1, floats.Sum(w), 1e-12)
			}
		})
	}
}

func TestZeroStepShapeIsSkipped(t *testing.T) {
	c := NewComponent("bkg", "bkg", templatestore.NewMemoryStore())
	fixed := nuisance.NewShapeSystematic("fixed")
	fixed.Step = 0
	active := nuisance.NewShapeSystematic("act")
	active.Value = 0.25
	require.NoError(t, c.AddShape(fixed))
	require.NoError(t, c.AddShape(active))

	corners, err := c.Corners()
	require.NoError(t, err)
	require.Len(t, corners, 2)
	assert.Equal(t, "bkgfixed0.00act0.00", corners[0].Key)
	assert.Equal(t, "bkgfixed0.00act1.00", corners[1].Key)
	assert.InDelta(t, 0.75, corners[0].Weight, 1e-12)
	assert.InDelta(t, 0.25, corners[1].Weight, 1e-12)
}

func gridComponent(t *testing.T) (*Component, *templatestore.MemoryStore) {
	t.Helper()
	store := templatestore.NewMemoryStore()
	for _, a := range []float64{-1, 0, 1} {
		for _, b := range []float64{-1, 0, 1} {
			name := fmt.Sprintf("bkgA%.2fB%.2f", a, b)
			store.Put(name, constant(t, 10+3*a+b))
		}
	}
	c := NewComponent("bkg", "bkg", store)
	require.NoError(t, c.AddShape(nuisance.NewShapeSystematic("A")))
	require.NoError(t, c.AddShape(nuisance.NewShapeSystematic("B")))
	require.NoError(t, c.Load())
	return c, store
}

func TestDensityAtGridPointIsExact(t *testing.T) {
	c, store := gridComponent(t)
	shapes := c.Shapes()

	for _, a := range []float64{-1, 0, 1} {
		for _, b := range []float64{-1, 0, 1} {
			shapes[0].Value, shapes[1].Value = a, b
			got, err := c.Density()
			require.NoError(t, err)
			want, err := store.Template(fmt.Sprintf("bkgA%.2fB%.2f", a, b))
			require.NoError(t, err)
			assert.Equal(t, want.Values(), got.Values(), "A=%g B=%g", a, b)
		}
	}
}

func TestDensityIsMultilinear(t *testing.T) {
	c, _ := gridComponent(t)
	shapes := c.Shapes()
	shapes[0].Value, shapes[1].Value = 0.5, -0.25

	got, err := c.Density()
	require.NoError(t, err)
	// the grid is linear in A and B so interpolation reproduces it exactly
	assert.InDelta(t, 4*(10+1.5-0.25), got.Integral(), 1e-9)
}

func TestScaleModifiersAndSetEvents(t *testing.T) {
	store := templatestore.NewMemoryStore()
	store.Put("sig", constant(t, 2.5))
	c := NewComponent("sig", "sig", store)
	norm := nuisance.NewScaleSystematic("sigNorm", 0.1)
	require.NoError(t, c.AddScale(norm))
	require.NoError(t, c.Load())

	assert.InDelta(t, 10, c.DefaultEvents(), 1e-12)

	for _, n := range []float64{1, 37.5, 1e-3, 1e6} {
		require.NoError(t, c.SetEvents(n))
		assert.InDelta(t, n, c.DefaultEvents(), 1e-9*n)
		require.NoError(t, c.SetEvents(n))
		assert.InDelta(t, n, c.DefaultEvents(), 1e-9*n, "SetEvents is idempotent")
	}

	require.NoError(t, c.SetEvents(100))
	norm.Value = 2
	ev, err := c.Events()
	require.NoError(t, err)
	assert.InDelta(t, 120, ev, 1e-9)

	def, err := c.DefaultDensity()
	require.NoError(t, err)
	assert.InDelta(t, 100, def.Integral(), 1e-9)
}

func TestNonPositiveScaleIsRejected(t *testing.T) {
	store := templatestore.NewMemoryStore()
	store.Put("bkg", constant(t, 2.5))
	c := NewComponent("bkg", "bkg", store)
	require.NoError(t, c.Load())
	require.NoError(t, c.SetEvents(40))

	for _, n := range []float64{0, -3} {
		err := c.SetEvents(n)
		assert.ErrorIs(t, err, core.ErrConfiguration, "events %g", n)
		err = c.SetScaleFactor(n)
		assert.ErrorIs(t, err, core.ErrConfiguration, "scale %g", n)
	}
	assert.Error(t, c.SetScaleFactor(math.NaN()))
	assert.InDelta(t, 40, c.DefaultEvents(), 1e-9, "a rejected value keeps the previous scale")

	fresh := NewComponent("bkg", "bkg", store)
	require.NoError(t, fresh.Load())
	assert.Equal(t, 1.0, fresh.ScaleFactor())
	assert.InDelta(t, 10, fresh.DefaultEvents(), 1e-12)
}

func TestMissingTemplatesAreConfigurationErrors(t *testing.T) {
	store := templatestore.NewMemoryStore()
	store.Put("bkgA0.00", constant(t, 1))
	c := NewComponent("bkg", "bkg", store)
	require.NoError(t, c.AddShape(nuisance.NewShapeSystematic("A")))
	require.NoError(t, c.Load())

	c.Shapes()[0].Value = 0.5
	_, err := c.Density()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTemplateNotFound)
	assert.Contains(t, err.Error(), "bkgA1.00")

	missing := NewComponent("sig", "nosuch", store)
	err = missing.Load()
	assert.True(t, core.IsConfigurationError(err))

	_, err = NewComponent("x", "x", store).Density()
	assert.ErrorIs(t, err, core.ErrNotInitialized)
}

func TestDuplicateSystematicRejected(t *testing.T) {
	c := NewComponent("bkg", "bkg", templatestore.NewMemoryStore())
	require.NoError(t, c.AddShape(nuisance.NewShapeSystematic("A")))
	err := c.AddScale(nuisance.NewScaleSystematic("A", 0.1))
	assert.ErrorIs(t, err, core.ErrDuplicateParameter)
}

func TestSuffixAppendedOnce(t *testing.T) {
	c := NewComponent("bkg", "bkg", templatestore.NewMemoryStore())
	c.SetSuffix("_hi")
	require.NoError(t, c.AddShape(nuisance.NewShapeSystematic("A")))
	require.NoError(t, c.AddShape(nuisance.NewShapeSystematic("B")))
	assert.Equal(t, "bkgA0.00B0.00_hi", c.DefaultKey())
}

func TestReplaceParameter(t *testing.T) {
	c := NewComponent("bkg", "bkg", templatestore.NewMemoryStore())
	shape := nuisance.NewShapeSystematic("Leff")
	require.NoError(t, c.AddShape(shape))
	require.NoError(t, c.AddScale(nuisance.NewScaleSystematic("bkgNorm", 0.1)))

	shared := &nuisance.Parameter{Name: "bkgNorm", Min: -5, Max: 5, Kind: nuisance.KindNuisance}
	assert.True(t, c.ReplaceParameter(shared))
	assert.Same(t, shared, c.Scales()[0].Parameter)
	assert.Equal(t, 0.1, c.Scales()[0].RelativeUncertainty)
	assert.Same(t, shape.Parameter, c.Shapes()[0].Parameter)

	assert.False(t, c.ReplaceParameter(&nuisance.Parameter{Name: "Qy"}))
}
