package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xelimit/domain/histogram"
)

func TestDataSampleAccounting(t *testing.T) {
	d := New("data", RoleData)
	d.Add(0.1, 0.2, 1)
	d.Add(0.3, 0.4, 2.5)

	assert.Equal(t, 2, d.Entries())
	assert.InDelta(t, 3.5, d.SumOfWeights(), 1e-12)

	ev, err := d.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, 2.5, ev.Weight)

	_, err = d.Entry(2)
	assert.Error(t, err)

	d.Clear()
	assert.Equal(t, 0, d.Entries())
	assert.Equal(t, 0.0, d.SumOfWeights())
}

func TestFromHistogramSkipsEmptyBins(t *testing.T) {
	ax := histogram.Axis{NBins: 2, Min: 0, Max: 1}
	h, err := histogram.FromValues("asimov", ax, ax, []float64{0, 3, 0, 1.5})
	require.NoError(t, err)

	d := FromHistogram("asimov", RoleData, h)
	assert.Equal(t, 2, d.Entries())
	assert.InDelta(t, h.Integral(), d.SumOfWeights(), 1e-12)

	ev, _ := d.Entry(0)
	assert.Equal(t, 0.25, ev.X)
	assert.Equal(t, 0.75, ev.Y)
}
