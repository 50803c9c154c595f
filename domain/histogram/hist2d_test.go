package histogram

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitSquare(t *testing.T, n int) (Axis, Axis) {
	t.Helper()
	x, err := NewAxis(n, 0, 1)
	require.NoError(t, err)
	y, err := NewAxis(n, 0, 1)
	require.NoError(t, err)
	return x, y
}

func TestAxisFindBin(t *testing.T) {
	a := Axis{NBins: 4, Min: 0, Max: 2}

	tests := []struct {
		name string
		v    float64
		bin  int
		ok   bool
	}{
		{"lower edge", 0, 0, true},
		{"inside", 0.7, 1, true},
		{"upper edge goes to last bin", 2, 3, true},
		{"below", -0.1, 0, false},
		{"above", 2.1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin, ok := a.FindBin(tt.v)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.bin, bin)
			}
		})
	}
}

func TestNewAxisRejectsEmptyRange(t *testing.T) {
	_, err := NewAxis(0, 0, 1)
	assert.Error(t, err)
	_, err = NewAxis(3, 1, 1)
	assert.Error(t, err)
}

func TestHistogramArithmetic(t *testing.T) {
	x, y := unitSquare(t, 2)
	h, err := FromValues("a", x, y, []float64{1, 2, 3, 4})
	require.NoError(t, err)

	assert.InDelta(t, 10, h.Integral(), 1e-12)
	assert.Equal(t, 2.0, h.Content(0.1, 0.9))
	assert.Equal(t, 3.0, h.Content(0.9, 0.1))
	assert.Equal(t, 0.0, h.Content(1.5, 0.5))

	c := h.Clone()
	c.Scale(2)
	assert.InDelta(t, 20, c.Integral(), 1e-12)
	assert.InDelta(t, 10, h.Integral(), 1e-12, "clone must not share storage")

	require.NoError(t, h.Add(c, 0.5))
	assert.InDelta(t, 20, h.Integral(), 1e-12)

	other, err := New("b", Axis{NBins: 3, Min: 0, Max: 1}, y)
	require.NoError(t, err)
	assert.Error(t, h.Add(other, 1))

	h.Reset()
	assert.Equal(t, 0.0, h.Integral())
}

func TestIntegralRangeFractionalEdges(t *testing.T) {
	x, y := unitSquare(t, 4)
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = 1
	}
	h, err := FromValues("flat", x, y, vals)
	require.NoError(t, err)

	assert.InDelta(t, 16, h.IntegralRange(0, 1, 0, 1), 1e-12)
	// 0.125..0.625 covers half of bin 0, all of bin 1 and half of bin 2
	assert.InDelta(t, 8, h.IntegralRange(0.125, 0.625, 0, 1), 1e-12)
	assert.InDelta(t, 4, h.IntegralRange(0.5, 0, 0, 0.5), 1e-12)
}

func TestFromValuesLengthMismatch(t *testing.T) {
	x, y := unitSquare(t, 2)
	_, err := FromValues("bad", x, y, []float64{1, 2, 3})
	assert.Error(t, err)
}

func TestSamplerFollowsContent(t *testing.T) {
	x, y := unitSquare(t, 2)
	h, err := FromValues("peak", x, y, []float64{0, 0, 0, 1})
	require.NoError(t, err)

	s, err := NewSampler(h)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		px, py := s.Sample(rng)
		assert.GreaterOrEqual(t, px, 0.5)
		assert.GreaterOrEqual(t, py, 0.5)
		assert.Less(t, px, 1.0)
		assert.Less(t, py, 1.0)
	}

	empty, err := New("empty", x, y)
	require.NoError(t, err)
	_, err = NewSampler(empty)
	assert.ErrorIs(t, err, ErrNotSampleable)
}
