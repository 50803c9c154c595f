package toyfile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xelimit/domain/nuisance"
	"xelimit/domain/sample"
)

func TestToyFileRoundTrip(t *testing.T) {
	a := sample.New("toy_0", sample.RoleData)
	a.Add(0.1, 0.2, 1)
	a.Add(0.3, 0.4, 1)
	a.TrueParams = []nuisance.Value{{Name: "Sigma", Value: 2}}
	b := sample.New("toy_0_cal", sample.RoleCalibration)
	b.Add(0.5, 0.5, 3)
	empty := sample.New("toy_1", sample.RoleData)

	path := filepath.Join(t.TempDir(), "toys.json.zst")
	s := NewStore()
	require.NoError(t, s.WriteToys(context.Background(), path, []*sample.DataSample{a, b, empty}))

	got, err := s.ReadToys(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, a.Events(), got[0].Events())
	assert.Equal(t, a.TrueParams, got[0].TrueParams)
	assert.Equal(t, 2.0, got[0].SumOfWeights())
	assert.Equal(t, sample.RoleCalibration, got[1].Role)
	assert.Equal(t, 3.0, got[1].SumOfWeights())
	assert.Equal(t, 0, got[2].Entries())
}
