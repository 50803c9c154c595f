package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"xelimit/adapters/excel"
	"xelimit/domain/limits"
	"xelimit/internal/asymptotic"
	"xelimit/internal/config"
	"xelimit/internal/report"
)

type limitOptions struct {
	models     []string
	scanMin    float64
	scanMax    float64
	scanPoints int
	report     bool
}

func addLimitFlags(cmd *cobra.Command, opts *limitOptions) {
	cmd.Flags().StringSliceVarP(&opts.models, "model", "m", nil, "Model file (JSON or YAML); repeat for several mass points")
	cmd.Flags().Float64Var(&opts.scanMin, "scan-min", 0, "Lower end of the mu scan (default: from the sensitivity)")
	cmd.Flags().Float64Var(&opts.scanMax, "scan-max", 0, "Upper end of the mu scan (default: from the sensitivity)")
	cmd.Flags().IntVar(&opts.scanPoints, "scan-points", 0, "Points in the mu scan (default XELIMIT_SCAN_POINTS)")
	cmd.Flags().BoolVar(&opts.report, "report", false, "Also write an HTML report next to each workbook")
}

func newSensitivityCmd() *cobra.Command {
	var opts limitOptions
	cmd := &cobra.Command{
		Use:   "sensitivity [model-file...]",
		Short: "Compute the expected limit band on background-only Asimov data",
		Long: `Compute the median expected limit and its ±1σ/±2σ band for each model.

Example: xelimit sensitivity -m models/sr1_10gev.json -m models/sr1_50gev.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.models = append(opts.models, args...)
			return runMassPoints(cmd.Context(), opts, false)
		},
	}
	addLimitFlags(cmd, &opts)
	return cmd
}

func newLimitCmd() *cobra.Command {
	var opts limitOptions
	cmd := &cobra.Command{
		Use:   "limit [model-file...]",
		Short: "Compute expected and observed limits",
		Long: `Compute the expected band and the observed CLs and non-CLs limits for each
model. Models run concurrently, XELIMIT_PARALLEL at a time.

Example: xelimit limit models/*.yaml --report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.models = append(opts.models, args...)
			return runMassPoints(cmd.Context(), opts, true)
		},
	}
	addLimitFlags(cmd, &opts)
	return cmd
}

func runMassPoints(ctx context.Context, opts limitOptions, withObserved bool) error {
	if len(opts.models) == 0 {
		return fmt.Errorf("no model files given")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results := make([]*limits.Result, len(opts.models))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Limits.Parallel)
	for i, path := range opts.models {
		g.Go(func() error {
			res, err := a.runMassPoint(gctx, path, opts, withObserved)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].ModelName != results[j].ModelName {
			return results[i].ModelName < results[j].ModelName
		}
		return results[i].Mass < results[j].Mass
	})
	printResults(os.Stdout, results)
	return nil
}

func (a *app) asymptoticConfig(opts limitOptions, mc *config.ModelConfig) asymptotic.Config {
	cfg := asymptotic.Config{
		CL:         a.cfg.Limits.ConfidenceLevel,
		UseQTilde:  a.cfg.Limits.UseQTilde,
		ScanMin:    opts.scanMin,
		ScanMax:    opts.scanMax,
		ScanPoints: a.cfg.Limits.ScanPoints,
		Mass:       mc.Mass,
		AltX:       mc.AltX,
	}
	if opts.scanPoints > 0 {
		cfg.ScanPoints = opts.scanPoints
	}
	return cfg
}

func (a *app) runMassPoint(ctx context.Context, path string, opts limitOptions, withObserved bool) (*limits.Result, error) {
	m, mc, err := a.buildModel(ctx, path)
	if err != nil {
		return nil, err
	}

	eng, err := asymptotic.New(m, a.asymptoticConfig(opts, mc))
	if err != nil {
		return nil, err
	}
	res, err := eng.Run(ctx, mc.Name, withObserved)
	if err != nil {
		return nil, err
	}
	if err := a.publish(ctx, res, opts.report); err != nil {
		return nil, err
	}
	return res, nil
}

// publish writes the workbook, the optional HTML report and the database row.
func (a *app) publish(ctx context.Context, res *limits.Result, withReport bool) error {
	out, err := a.writer.WriteResult(ctx, res)
	if err != nil {
		return err
	}
	a.log.Info("mass %g: results written to %s", res.Mass, out)

	if withReport {
		page := report.HTML(res.ModelName, report.Markdown(res))
		name := strings.TrimSuffix(excel.FileName(res), ".xlsx") + ".html"
		if err := os.WriteFile(filepath.Join(a.cfg.Paths.OutputDir, name), page, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if a.repo != nil {
		return a.repo.SaveResult(ctx, res)
	}
	return nil
}

func newCombineCmd() *cobra.Command {
	var (
		opts     limitOptions
		name     string
		observed bool
	)
	cmd := &cobra.Command{
		Use:   "combine [model-file...]",
		Short: "Compute one limit from several models fitted together",
		Long: `Sum the likelihoods of several models at one mass point, for example two
detector volumes, and compute a single expected band (and observed limit with
--observed). The signal strength and same-named systematics are shared.

Example: xelimit combine -m models/sr0_50gev.yaml -m models/sr1_50gev.yaml --observed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.models = append(opts.models, args...)
			return runCombined(cmd.Context(), name, opts, observed)
		},
	}
	addLimitFlags(cmd, &opts)
	cmd.Flags().StringVar(&name, "name", "combined", "Name of the combined likelihood")
	cmd.Flags().BoolVar(&observed, "observed", false, "Also compute the observed limit")
	return cmd
}

func runCombined(ctx context.Context, name string, opts limitOptions, withObserved bool) error {
	if len(opts.models) < 2 {
		return fmt.Errorf("combine needs at least two model files")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfgs := make([]*config.ModelConfig, len(opts.models))
	for i, path := range opts.models {
		mc, err := config.LoadModel(path)
		if err != nil {
			return err
		}
		cfgs[i] = mc
	}
	c, err := a.builder.Combine(ctx, name, cfgs)
	if err != nil {
		return err
	}
	for _, m := range c.Members() {
		if err := a.logEventSummary(m); err != nil {
			return err
		}
	}

	cfg := a.asymptoticConfig(opts, cfgs[0])
	eng, err := asymptotic.New(c, cfg)
	if err != nil {
		return err
	}
	res, err := eng.Run(ctx, name, withObserved)
	if err != nil {
		return err
	}
	if err := a.publish(ctx, res, opts.report); err != nil {
		return err
	}
	printResults(os.Stdout, []*limits.Result{res})
	return nil
}

func printResults(w io.Writer, results []*limits.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tMASS\t-2σ\t-1σ\tMEDIAN\t+1σ\t+2σ\tOBSERVED (CLs)\tID")
	for _, r := range results {
		obs := "-"
		if r.HasObserved {
			obs = "not reached"
			if r.Observed.CLsFound {
				obs = fmt.Sprintf("%.4g", r.Observed.CLs)
			}
		}
		b := r.Sensitivity.Band
		fmt.Fprintf(tw, "%s\t%g\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%s\t%s\n",
			r.ModelName, r.Mass, b.Minus2, b.Minus1, b.Median, b.Plus1, b.Plus2, obs, r.ID)
	}
	tw.Flush()
}
