package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"xelimit/domain/limits"
	"xelimit/domain/nuisance"
	"xelimit/internal/toys"
)

func result() *limits.Result {
	return &limits.Result{
		ID:        "0190f5f2-0000-7000-8000-000000000000",
		ModelName: "xe1t",
		Mass:      50,
		CL:        0.1,
		Sensitivity: limits.Sensitivity{
			Sigma0:   0.5,
			MedianMu: 0.82,
			Band:     limits.ExpectedBand{Minus2: 1e-46, Minus1: 2e-46, Median: 3e-46, Plus1: 4e-46, Plus2: 5e-46},
		},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC),
	}
}

func TestMarkdownExpectedOnly(t *testing.T) {
	md := Markdown(result())

	assert.Contains(t, md, "# xe1t at mass 50")
	assert.Contains(t, md, "90% confidence level")
	assert.Contains(t, md, "| median | 3e-46 |")
	assert.NotContains(t, md, "Observed limit")
	assert.NotContains(t, md, "Alternative x")
}

func TestMarkdownObservedAndPulls(t *testing.T) {
	res := result()
	res.HasObserved = true
	res.Observed = limits.ObservedLimit{CLs: 2.5e-46, CLsFound: true, MuHat: 0.1}
	res.Pulls = []limits.Pulls{{
		Label:  "unconditional",
		Before: []nuisance.Value{{Name: "Leff", Value: 0}},
		After:  []nuisance.Value{{Name: "Leff", Value: 0.3}},
	}}

	md := Markdown(res)
	assert.Contains(t, md, "- CLs: 2.5e-46")
	assert.Contains(t, md, "- no CLs: not reached in scan")
	assert.Contains(t, md, "| Leff | 0 | 0.3 |")
}

func TestHTMLRendersTables(t *testing.T) {
	page := string(HTML("xe1t", Markdown(result())))

	assert.True(t, strings.Contains(page, "<html"), "complete page")
	assert.Contains(t, page, "<title>xe1t</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<td>median</td>")
}

func TestToyMarkdown(t *testing.T) {
	md := ToyMarkdown("b1", []toys.Summary{{Mu: 1, Toys: 200, Mean: 1.2, Median: 0.9, StdDev: 1.1, ZeroFraction: 0.45}})
	assert.Contains(t, md, "| 1 | 200 | 1.2 | 0.9 | 1.1 | 45.0% |")
}
