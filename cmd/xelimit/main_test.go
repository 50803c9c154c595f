package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xelimit/domain/core"
	"xelimit/domain/limits"
	"xelimit/internal/toys"
)

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, []*limits.Result{
		{ID: "r1", ModelName: "xe", Mass: 10, Sensitivity: limits.Sensitivity{Band: limits.ExpectedBand{Median: 3e-46}}},
		{ID: "r2", ModelName: "xe", Mass: 50, HasObserved: true, Observed: limits.ObservedLimit{CLs: 2e-46, CLsFound: true}},
		{ID: "r3", ModelName: "xe", Mass: 100, HasObserved: true},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "MEDIAN")
	assert.Contains(t, lines[1], "3e-46")
	assert.Contains(t, lines[2], "2e-46")
	assert.Contains(t, lines[3], "not reached")
}

func TestRunMassPointsRequiresModels(t *testing.T) {
	err := runMassPoints(context.Background(), limitOptions{}, true)
	assert.ErrorContains(t, err, "no model files")
}

func TestRunCombinedRequiresTwoModels(t *testing.T) {
	err := runCombined(context.Background(), "c", limitOptions{models: []string{"a.yaml"}}, false)
	assert.ErrorContains(t, err, "at least two")
}

func TestWriteToyFitOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	out := toyFitOutput{
		BatchID: core.BatchID("b1"),
		Model:   "xe",
		Summary: []toys.Summary{{Mu: 1, Toys: 2}},
		Fits:    []limits.ToyFitRecord{{BatchID: "b1", ToyIndex: 0, Mu: 1, QTilde: 0.4}},
	}

	path, err := writeToyFitOutput(dir, out)
	require.NoError(t, err)
	assert.Equal(t, "toyfits_xe_b1.json", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var back toyFitOutput
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, out.Fits, back.Fits)
	assert.Nil(t, back.Curve)
}
