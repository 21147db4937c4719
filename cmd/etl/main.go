package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"analyticsetl/internal/config"
	"analyticsetl/internal/logger"
	"analyticsetl/internal/metrics"
	"analyticsetl/internal/metrics/datadog"
	"analyticsetl/internal/metrics/prompush"
	"analyticsetl/internal/pipeline"
	"analyticsetl/internal/report"

	// register all warehouse backends with the storage factory.
	_ "analyticsetl/internal/storage/all"
)

// runner is the pipeline seam used by runMain.
type runner interface {
	Run(ctx context.Context) (report.RunMeta, error)
}

// metricsBackend is what initMetrics needs from a constructed backend.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	loadConfig  func(path, root string) (config.ETLConfig, error)
	newLogger   func(level, env string) (*zap.Logger, error)
	initMetrics func(ctx context.Context, m config.MetricsConfig, log *zap.Logger) (func(), error)
	newRunner   func(cfg config.ETLConfig, log *zap.Logger) runner
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:  config.Load,
		newLogger:   logger.New,
		initMetrics: initMetrics,
		newRunner: func(cfg config.ETLConfig, log *zap.Logger) runner {
			return pipeline.NewRunner(cfg, log)
		},
	}
}

// main loads the configuration, sets up logging and metrics, and runs one
// orders/users batch.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain returns the process exit code: 0 on success, 1 on config or run
// failure, 2 on usage errors.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath        string
		root           string
		backendFlag    string
		pushGatewayURL string
		validate       bool
		verbose        bool
	)
	fs.StringVar(&cfgPath, "config", "", "optional config file (yaml, json or toml)")
	fs.StringVar(&root, "root", "", "project root; inputs and outputs default to <root>/data")
	fs.StringVar(&backendFlag, "metrics-backend", "", "metrics backend (none, pushgateway, datadog); overrides config")
	fs.StringVar(&pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL; overrides config")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&verbose, "v", false, "enable debug logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "usage: etl [-config path] [-root dir] [-validate]: unexpected arguments %q\n", fs.Args())
		return 2
	}

	cfg, err := deps.loadConfig(strings.TrimSpace(cfgPath), strings.TrimSpace(root))
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if backendFlag != "" {
		cfg.Metrics.Backend = backendFlag
	}
	if pushGatewayURL != "" {
		cfg.Metrics.PushgatewayURL = pushGatewayURL
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(stderr, "configuration is invalid")
		return 1
	}
	if validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return 0
	}

	zl, err := deps.newLogger(cfg.Log.Level, cfg.Log.Env)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = zl.Sync() }()

	cleanup, err := deps.initMetrics(ctx, cfg.Metrics, zl)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	start := time.Now()
	zl.Debug("pipeline config", zap.Any("config", config.Stringify(cfg)))

	meta, err := deps.newRunner(cfg, zl).Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}
	zl.Info("completed",
		zap.String("run_id", meta.RunID),
		zap.Int("rows_out_analytics", meta.RowsOutAnalytics),
		zap.Duration("duration", time.Since(start).Truncate(time.Millisecond)))
	fmt.Fprintf(stdout, "ok run_id=%s rows=%d\n", meta.RunID, meta.RowsOutAnalytics)
	return 0
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(job, url string) (metricsBackend, error) {
		b, err := prompush.NewBackend(job, url)
		if err != nil {
			return nil, err
		}
		return pushCloser{b}, nil
	}
	setMetricsBackend = metrics.SetBackend
)

// pushCloser pushes once on Close.
type pushCloser struct{ *prompush.Backend }

func (p pushCloser) Close() error { return p.Flush() }

// initMetrics wires the configured backend into the metrics package. The
// returned cleanup is never nil; it flushes and detaches the backend and logs
// a flush error to log rather than returning it.
func initMetrics(ctx context.Context, m config.MetricsConfig, log *zap.Logger) (func(), error) {
	noop := func() {}
	log = logger.OrNop(log)

	var (
		b   metricsBackend
		err error
	)
	switch m.Backend {
	case "", "none":
		return noop, nil
	case "datadog", "dd":
		b, err = newDatadogBackend(ctx, datadog.Options{
			JobName: m.Job,
			Tags:    datadog.ParseTagsCSV(m.Tags),
		})
	case "pushgateway":
		if m.PushgatewayURL == "" {
			return noop, errors.New("pushgateway backend needs a url")
		}
		b, err = newPushBackend(m.Job, m.PushgatewayURL)
	default:
		return noop, fmt.Errorf("unknown metrics backend %q (want none|datadog|pushgateway)", m.Backend)
	}
	if err != nil {
		return noop, fmt.Errorf("%s backend: %w", m.Backend, err)
	}

	setMetricsBackend(b)
	return func() {
		if err := b.Close(); err != nil {
			log.Warn("metrics: close error", zap.String("backend", m.Backend), zap.Error(err))
		}
		setMetricsBackend(nil)
	}, nil
}
