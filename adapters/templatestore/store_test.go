package templatestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xelimit/domain/core"
	"xelimit/domain/histogram"
)

func flat(t *testing.T, v float64) *histogram.Hist2D {
	t.Helper()
	ax := histogram.Axis{NBins: 2, Min: 0, Max: 1}
	h, err := histogram.FromValues("flat", ax, ax, []float64{v, v, v, v})
	require.NoError(t, err)
	return h
}

func TestMemoryStoreLookup(t *testing.T) {
	s := NewMemoryStore()
	src := flat(t, 1)
	s.Put("bkg", src)

	src.Scale(10)
	got, err := s.Template("bkg")
	require.NoError(t, err)
	assert.InDelta(t, 4, got.Integral(), 1e-12, "store keeps its own copy")
	assert.True(t, s.Has("bkg"))

	_, err = s.Template("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTemplateNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestFileRoundTrip(t *testing.T) {
	for _, name := range []string{"templates.json", "templates.json.zst"} {
		t.Run(name, func(t *testing.T) {
			s := NewMemoryStore()
			s.Put("bkgLeff0.00", flat(t, 1))
			s.Put("bkgLeff1.00", flat(t, 2))

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteFile(path, s))

			src := NewFileSource()
			opened, err := src.Open(path)
			require.NoError(t, err)
			assert.Equal(t, []string{"bkgLeff0.00", "bkgLeff1.00"}, opened.Names())

			h, err := opened.Template("bkgLeff1.00")
			require.NoError(t, err)
			assert.InDelta(t, 8, h.Integral(), 1e-12)

			again, err := src.Open(path)
			require.NoError(t, err)
			assert.Same(t, opened, again)
		})
	}
}

func TestMergeRejectsClash(t *testing.T) {
	a := NewMemoryStore()
	a.Put("x", flat(t, 1))
	b := NewMemoryStore()
	b.Put("x", flat(t, 1))
	assert.Error(t, a.Merge(b))
}
