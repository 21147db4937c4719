package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"analyticsetl/internal/config"
	"analyticsetl/internal/frame"
	"analyticsetl/internal/logger"
	"analyticsetl/internal/metrics"
	"analyticsetl/internal/parser/tsv"
	"analyticsetl/internal/report"
	"analyticsetl/internal/storage"
	"analyticsetl/internal/storage/columnar"
	"analyticsetl/internal/warehouse"
)

// Runner executes one batch described by an ETLConfig.
type Runner struct {
	Cfg    config.ETLConfig
	Logger *zap.Logger

	// Options overrides OptionsFrom(Cfg) when non-nil.
	Options *Options

	// NewRepository opens the warehouse. It is only called when
	// Cfg.Warehouse.Kind is set.
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	now func() time.Time
}

// NewRunner returns a Runner that opens warehouses through storage.New.
func NewRunner(cfg config.ETLConfig, log *zap.Logger) *Runner {
	return &Runner{
		Cfg:           cfg,
		Logger:        log,
		NewRepository: storage.New,
	}
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Run reads both inputs, transforms them, commits the three Parquet
// snapshots plus the run metadata, and then loads the warehouse if one is
// configured.
//
// Nothing is written unless every stage passes. A warehouse failure is
// returned after the files are already committed; rerunning is safe because
// warehouse loads are idempotent.
func (r *Runner) Run(ctx context.Context) (report.RunMeta, error) {
	log := logger.OrNop(r.Logger)
	started := r.clock()
	runID := report.NewRunID()
	log = log.With(zap.String("run_id", runID))

	opt := OptionsFrom(r.Cfg)
	if r.Options != nil {
		opt = *r.Options
	}

	orders, err := r.read(ctx, log, "read_orders", r.Cfg.Input.Orders)
	if err != nil {
		return report.RunMeta{}, err
	}
	users, err := r.read(ctx, log, "read_users", r.Cfg.Input.Users)
	if err != nil {
		return report.RunMeta{}, err
	}

	res, err := Transform(log, orders, users, opt)
	if err != nil {
		return report.RunMeta{}, err
	}
	log.Info("join",
		zap.Int("left_rows", res.Join.LeftRows),
		zap.Int("right_rows", res.Join.RightRows),
		zap.Int("matched", res.Join.Matched),
		zap.Float64("match_rate", res.Join.MatchRate()))

	meta, err := report.Build(report.Input{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: r.clock(),
		OrdersRaw:  orders,
		Users:      res.Users,
		Analytics:  res.Analytics,
		Stages:     res.Stages,
		Coercions:  res.Coercions,
		Config:     config.Stringify(r.Cfg),
	})
	if err != nil {
		return report.RunMeta{}, fmt.Errorf("stage report: %w", err)
	}

	commitStart := time.Now()
	out := r.Cfg.Output
	err = commit([]output{
		{path: out.Users, write: parquetWriter(res.Users)},
		{path: out.OrdersClean, write: parquetWriter(res.OrdersClean)},
		{path: out.Analytics, write: parquetWriter(res.Analytics)},
		{path: out.RunMeta, write: func(p string) error { return report.Write(p, meta) }},
	})
	metrics.StepDone("commit", commitStart, err)
	if err != nil {
		log.Error("stage failed", zap.String("stage", "commit"), zap.Error(err))
		return report.RunMeta{}, fmt.Errorf("stage commit: %w", err)
	}
	metrics.Rows("analytics_out", res.Analytics.Len())
	log.Info("stage ok",
		zap.String("stage", "commit"),
		zap.String("dir", r.Cfg.Paths().Processed),
		zap.Duration("duration", durMS(commitStart)))

	if r.Cfg.Warehouse.Kind != "" {
		if err := r.loadWarehouse(ctx, log, res); err != nil {
			return meta, err
		}
	}
	return meta, nil
}

func (r *Runner) read(ctx context.Context, log *zap.Logger, stage, path string) (*frame.Frame, error) {
	start := time.Now()
	f, err := tsv.ReadFile(ctx, path, tsv.Options{})
	metrics.StepDone(stage, start, err)
	if err != nil {
		log.Error("stage failed", zap.String("stage", stage), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("stage %s: %w", stage, err)
	}
	metrics.Rows(stage, f.Len())
	log.Info("stage ok",
		zap.String("stage", stage),
		zap.String("path", path),
		zap.Int("rows", f.Len()),
		zap.Duration("duration", durMS(start)))
	return f, nil
}

func (r *Runner) loadWarehouse(ctx context.Context, log *zap.Logger, res Result) error {
	start := time.Now()
	err := r.loadTables(ctx, log, res)
	metrics.StepDone("warehouse", start, err)
	if err != nil {
		log.Error("stage failed", zap.String("stage", "warehouse"), zap.Error(err))
		return fmt.Errorf("stage warehouse: %w", err)
	}
	return nil
}

func (r *Runner) loadTables(ctx context.Context, log *zap.Logger, res Result) error {
	if r.NewRepository == nil {
		return fmt.Errorf("no repository factory")
	}
	wh := r.Cfg.Warehouse
	repo, err := r.NewRepository(ctx, storage.Config{Kind: wh.Kind, DSN: wh.DSN})
	if err != nil {
		return err
	}
	defer repo.Close()

	l := &warehouse.Loader{
		Repo:      repo,
		Prefix:    wh.TablePrefix,
		BatchSize: wh.BatchSize,
		Logger:    log.Sugar(),
	}
	for _, t := range []struct {
		name string
		f    *frame.Frame
	}{
		{"users", res.Users},
		{"analytics", res.Analytics},
	} {
		if _, err := l.Load(ctx, t.name, t.f); err != nil {
			return err
		}
	}
	return nil
}

func parquetWriter(f *frame.Frame) func(string) error {
	return func(path string) error { return columnar.WriteFile(path, f) }
}
