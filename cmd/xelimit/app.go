package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"xelimit/adapters/excel"
	"xelimit/adapters/fit"
	"xelimit/adapters/postgres"
	"xelimit/adapters/templatestore"
	"xelimit/adapters/toyfile"
	"xelimit/internal"
	"xelimit/internal/config"
	"xelimit/internal/likelihood"
	"xelimit/internal/modelbuilder"
	"xelimit/ports"
)

// app holds the adapters shared by all commands.
type app struct {
	cfg      *config.Config
	builder  *modelbuilder.Builder
	writer   ports.ResultWriter
	toyStore ports.ToyStore
	db       *sqlx.DB
	repo     ports.ResultRepository
	log      *internal.Logger
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg: cfg,
		builder: modelbuilder.New(
			templatestore.NewFileSource(),
			excel.NewSampleReader(),
			fit.NewNelderMead(fit.DefaultConfig()),
		),
		writer:   excel.NewResultWriter(cfg.Paths.OutputDir),
		toyStore: toyfile.NewStore(),
		log:      internal.DefaultLogger.With("xelimit"),
	}

	if cfg.Database.Enabled() {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		a.repo = postgres.NewResultRepository(db)
	}
	return a, nil
}

func (a *app) requireDB() error {
	if a.db == nil {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	return nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// buildModel loads a model file and returns the initialized model with its
// configuration.
func (a *app) buildModel(ctx context.Context, path string) (*likelihood.Model, *config.ModelConfig, error) {
	mc, err := config.LoadModel(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := a.builder.Build(ctx, mc)
	if err != nil {
		return nil, nil, err
	}
	if err := a.logEventSummary(m); err != nil {
		return nil, nil, err
	}
	return m, mc, nil
}

func (a *app) logEventSummary(m *likelihood.Model) error {
	summary, err := m.EventSummary()
	if err != nil {
		return err
	}
	a.log.Info("model %s: expected events (signal at mu=1)", m.Name)
	for _, c := range summary {
		tag := ""
		switch {
		case c.Signal:
			tag = " [signal]"
		case c.Safeguarded:
			tag = " [safeguarded]"
		}
		a.log.Info("  %-24s default %10.4g  current %10.4g%s", c.Name, c.Default, c.Current, tag)
	}
	if d := m.Data(); d != nil {
		a.log.Info("  %-24s %10d events", "data", d.Entries())
	}
	return nil
}
