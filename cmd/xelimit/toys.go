package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"xelimit/adapters/rng"
	"xelimit/domain/core"
	"xelimit/domain/limits"
	"xelimit/internal/report"
	"xelimit/internal/toys"
)

func newToysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toys",
		Short: "Generate and fit pseudo-experiments",
	}
	cmd.AddCommand(newToysGenerateCmd(), newToysFitCmd())
	return cmd
}

type generateOptions struct {
	model     string
	out       string
	n         int
	first     int
	seed      uint64
	gen       toys.GeneratorConfig
	seedIsSet bool
}

func newToysGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate toy datasets from a model and store them in a toy file",
		Long: `Generate pseudo-experiments at a given signal strength. Toy i depends only on
the seed and i, so batches can be produced in parallel with --first.

Example: xelimit toys generate -m sr1_50gev.yaml --toys 500 --first 1000 --randomize --calibration -o toys_1000.jsonl.zst`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.seedIsSet = cmd.Flags().Changed("seed")
			return runToysGenerate(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model file")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "toys.jsonl.zst", "Toy file to write")
	cmd.Flags().IntVarP(&opts.n, "toys", "n", 0, "Number of toys (default XELIMIT_TOY_BATCH)")
	cmd.Flags().IntVar(&opts.first, "first", 0, "Index of the first toy")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Base seed (default XELIMIT_SEED)")
	cmd.Flags().Float64Var(&opts.gen.Mu, "mu", 0, "Injected signal strength")
	cmd.Flags().Float64Var(&opts.gen.AverageDataEvents, "avg-data-events", 0, "Rescale backgrounds to this mean event count")
	cmd.Flags().Float64Var(&opts.gen.AverageCalibrationEvents, "avg-calibration-events", 0, "Rescale calibration sources to this mean event count")
	cmd.Flags().BoolVar(&opts.gen.RandomizeNuisance, "randomize", false, "Draw nuisance parameters for every toy")
	cmd.Flags().BoolVar(&opts.gen.WithCalibration, "calibration", false, "Also generate a calibration sample per toy")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func runToysGenerate(ctx context.Context, opts generateOptions) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	m, _, err := a.buildModel(ctx, opts.model)
	if err != nil {
		return err
	}

	seed := a.cfg.Toys.Seed
	if opts.seedIsSet {
		seed = opts.seed
	}
	n := opts.n
	if n <= 0 {
		n = a.cfg.Toys.BatchSize
	}

	gen := toys.NewGenerator(m, opts.gen, rng.NewSeeded(seed))
	batch, err := gen.GenerateBatch(ctx, opts.first, n)
	if err != nil {
		return err
	}
	if err := a.toyStore.WriteToys(ctx, opts.out, toys.Samples(batch)); err != nil {
		return err
	}
	fmt.Printf("%d toys (first %d, seed %d) written to %s\n", n, opts.first, seed, opts.out)
	return nil
}

type fitOptions struct {
	model     string
	in        []string
	mus       []float64
	measure   bool
	limits    bool
	quantile  float64
	seed      uint64
	seedIsSet bool
}

func newToysFitCmd() *cobra.Command {
	var opts fitOptions
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit stored toys at a set of signal strengths",
		Long: `Fit every toy in the given toy files at each --mu and record q and q̃.
With --limits the toy q̃ quantile curve is built from the fits and each toy's
upper limit is searched against it.

Records go to postgres when DATABASE_URL is set, and always to a JSON file in
the output directory.

Example: xelimit toys fit -m sr1_50gev.yaml -i toys_0.jsonl.zst --mu 0.5,1,2,4 --measure --limits`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.seedIsSet = cmd.Flags().Changed("seed")
			return runToysFit(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model file")
	cmd.Flags().StringSliceVarP(&opts.in, "in", "i", nil, "Toy files to fit")
	cmd.Flags().Float64SliceVar(&opts.mus, "mu", nil, "Signal strengths to test")
	cmd.Flags().BoolVar(&opts.measure, "measure", false, "Perturb constrained parameters around the truth before fitting")
	cmd.Flags().BoolVar(&opts.limits, "limits", false, "Compute per-toy upper limits from the q̃ quantile curve")
	cmd.Flags().Float64Var(&opts.quantile, "quantile", 0, "q̃ quantile of the limit curve (default 1 - confidence level)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Base seed of the measurement streams (default XELIMIT_SEED)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("mu")
	return cmd
}

// toyFitOutput is the JSON file written by toys fit.
type toyFitOutput struct {
	BatchID core.BatchID            `json:"batch_id"`
	Model   string                  `json:"model"`
	Summary []toys.Summary          `json:"summary"`
	Curve   *toys.QuantileCurve     `json:"curve,omitempty"`
	Fits    []limits.ToyFitRecord   `json:"fits"`
	Limits  []limits.ToyLimitRecord `json:"limits,omitempty"`
}

func runToysFit(ctx context.Context, opts fitOptions) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	m, mc, err := a.buildModel(ctx, opts.model)
	if err != nil {
		return err
	}

	var loaded []*toys.Toy
	for _, path := range opts.in {
		samples, err := a.toyStore.ReadToys(ctx, path)
		if err != nil {
			return err
		}
		loaded = append(loaded, toys.LoadToys(samples)...)
	}
	for i, t := range loaded {
		t.Index = i
	}

	seed := a.cfg.Toys.Seed
	if opts.seedIsSet {
		seed = opts.seed
	}
	cl := a.cfg.Limits.ConfidenceLevel
	fitter := toys.NewFitterExclusion(m, toys.FitterConfig{
		Mus:               opts.mus,
		MeasureParameters: opts.measure,
		CL:                cl,
	}, rng.NewSeeded(seed))

	batch := core.NewBatchID()
	fits, err := fitter.Fit(ctx, batch, loaded)
	if err != nil {
		return err
	}
	summary, err := toys.Summarize(fits)
	if err != nil {
		return err
	}
	out := toyFitOutput{BatchID: batch, Model: mc.Name, Summary: summary, Fits: fits}

	if opts.limits {
		q := opts.quantile
		if q <= 0 {
			q = 1 - cl
		}
		curve, err := toys.TSDistributions(fits, q)
		if err != nil {
			return err
		}
		out.Curve = &curve
		if out.Limits, err = fitter.Limits(ctx, batch, loaded, curve); err != nil {
			return err
		}
	}

	if a.repo != nil {
		if err := a.repo.SaveToyFits(ctx, fits); err != nil {
			return err
		}
		if err := a.repo.SaveToyLimits(ctx, out.Limits); err != nil {
			return err
		}
	}

	path, err := writeToyFitOutput(a.cfg.Paths.OutputDir, out)
	if err != nil {
		return err
	}
	fmt.Print(report.ToyMarkdown(batch.String(), summary))
	fmt.Printf("\n%d fit records written to %s\n", len(fits), path)
	return nil
}

func writeToyFitOutput(dir string, out toyFitOutput) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("toyfits_%s_%s.json", out.Model, out.BatchID))
	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode toy fits: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write toy fits: %w", err)
	}
	return path, nil
}
