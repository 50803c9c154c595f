package asymptotic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xelimit/internal/testkit"
)

// Two identical volumes fitted together carry the information of one
// volume with twice the exposure: 2×(100 bkg, 1 sig) against (200 bkg, 2 sig).
func TestCombinedMatchesDoubledExposure(t *testing.T) {
	ctx := context.Background()
	single := testkit.DefaultFlatScenario()
	doubled := testkit.FlatScenario{Background: 200, Signal: 2, CrossSection: single.CrossSection}

	c, err := single.Combined(testkit.Maximizer(), "sr0", "sr1")
	require.NoError(t, err)
	m, err := doubled.Build(testkit.Maximizer())
	require.NoError(t, err)

	cfgC, cfgD := DefaultConfig(), DefaultConfig()
	cfgC.ScanMin, cfgC.ScanMax = 0, 20
	cfgD.ScanMin, cfgD.ScanMax = 0, 40
	engC, err := New(c, cfgC)
	require.NoError(t, err)
	engD, err := New(m, cfgD)
	require.NoError(t, err)

	// μ counts signal events per volume in the combination and in total for
	// the doubled model
	require.NoError(t, engC.GenerateAndSetAsimov(0))
	require.NoError(t, engD.GenerateAndSetAsimov(0))
	qC, err := engC.ComputeQTestStat(ctx, 5, false)
	require.NoError(t, err)
	qD, err := engD.ComputeQTestStat(ctx, 10, false)
	require.NoError(t, err)
	assert.InEpsilon(t, qD.Q, qC.Q, 1e-2)

	sensC, err := engC.ComputeSensitivity(ctx)
	require.NoError(t, err)
	sensD, err := engD.ComputeSensitivity(ctx)
	require.NoError(t, err)
	assert.InEpsilon(t, sensD.Band.Median, sensC.Band.Median, 5e-3)
	assert.InEpsilon(t, sensD.Band.Plus1, sensC.Band.Plus1, 5e-3)
	assert.InDelta(t, sensD.MedianMu, 2*sensC.MedianMu, 0.05)

	obsC, err := engC.ComputeLimits(ctx)
	require.NoError(t, err)
	obsD, err := engD.ComputeLimits(ctx)
	require.NoError(t, err)
	require.True(t, obsC.NoCLsFound)
	require.True(t, obsD.NoCLsFound)
	assert.InEpsilon(t, obsD.NoCLs, obsC.NoCLs, 0.03)
	assert.InEpsilon(t, obsD.CLs, obsC.CLs, 0.03)
	assert.Len(t, c.Datasets(), 2)
}
