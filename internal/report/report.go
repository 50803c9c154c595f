// Package report renders limit results as markdown and HTML.
package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"xelimit/domain/limits"
	"xelimit/internal/toys"
)

// Markdown summarizes one mass point.
func Markdown(res *limits.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s at mass %g\n\n", res.ModelName, res.Mass)
	fmt.Fprintf(&b, "Run `%s`, %.0f%% confidence level, computed %s.\n\n",
		res.ID, 100*(1-res.CL), res.CreatedAt.Format("2006-01-02 15:04 MST"))
	if res.AltX != 0 {
		fmt.Fprintf(&b, "Alternative x: %g\n\n", res.AltX)
	}

	b.WriteString("## Expected limit\n\n")
	b.WriteString("| band | cross section |\n|---|---|\n")
	labels := map[int]string{-2: "-2σ", -1: "-1σ", 0: "median", 1: "+1σ", 2: "+2σ"}
	for _, n := range limits.BandSigmas {
		fmt.Fprintf(&b, "| %s | %.4g |\n", labels[n], res.Sensitivity.Band.At(n))
	}
	fmt.Fprintf(&b, "\nσ₀ = %.4g, median μ = %.4g\n\n", res.Sensitivity.Sigma0, res.Sensitivity.MedianMu)

	if res.HasObserved {
		b.WriteString("## Observed limit\n\n")
		fmt.Fprintf(&b, "- CLs: %s\n", found(res.Observed.CLs, res.Observed.CLsFound))
		fmt.Fprintf(&b, "- no CLs: %s\n", found(res.Observed.NoCLs, res.Observed.NoCLsFound))
		fmt.Fprintf(&b, "- best fit μ̂: %.4g\n\n", res.Observed.MuHat)
	}

	if len(res.Pulls) > 0 {
		b.WriteString("## Pulls\n\n")
		for _, p := range res.Pulls {
			fmt.Fprintf(&b, "### %s\n\n| parameter | before | after |\n|---|---|---|\n", p.Label)
			after := make(map[string]float64, len(p.After))
			for _, v := range p.After {
				after[v.Name] = v.Value
			}
			for _, v := range p.Before {
				fmt.Fprintf(&b, "| %s | %.4g | %.4g |\n", v.Name, v.Value, after[v.Name])
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ToyMarkdown summarizes the q̃ distributions of a toy batch.
func ToyMarkdown(batch string, summaries []toys.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Toy batch %s\n\n", batch)
	b.WriteString("| μ | toys | mean | median | std dev | q̃=0 |\n|---|---|---|---|---|---|\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "| %g | %d | %.4g | %.4g | %.4g | %.1f%% |\n",
			s.Mu, s.Toys, s.Mean, s.Median, s.StdDev, 100*s.ZeroFraction)
	}
	return b.String()
}

// HTML renders markdown to a standalone HTML page.
func HTML(title, md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	r := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, r)
}

func found(v float64, ok bool) string {
	if !ok {
		return "not reached in scan"
	}
	return fmt.Sprintf("%.4g", v)
}
