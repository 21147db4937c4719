// Package pipeline runs one orders/users batch: gate, clean, outliers, join,
// report and an all-or-nothing commit of the outputs.
package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"analyticsetl/internal/config"
	"analyticsetl/internal/frame"
	"analyticsetl/internal/join"
	"analyticsetl/internal/logger"
	"analyticsetl/internal/metrics"
	"analyticsetl/internal/outlier"
	"analyticsetl/internal/quality"
	"analyticsetl/internal/report"
	"analyticsetl/internal/transformer"
)

// Options are the transform parameters resolved from configuration.
type Options struct {
	Gate quality.Gate

	OutlierK float64
	WinsorLo float64
	WinsorHi float64

	JoinSuffix string

	DedupeOrders bool
	StatusMap    transformer.Mapping
}

// OptionsFrom maps an ETLConfig onto transform options with the default gate.
func OptionsFrom(c config.ETLConfig) Options {
	var m transformer.Mapping
	if len(c.Clean.StatusMap) > 0 {
		m = transformer.Mapping(c.Clean.StatusMap)
	}
	return Options{
		Gate:         quality.DefaultGate(),
		OutlierK:     c.Outlier.K,
		WinsorLo:     c.Outlier.WinsorLo,
		WinsorHi:     c.Outlier.WinsorHi,
		JoinSuffix:   c.Join.Suffix,
		DedupeOrders: c.Clean.DedupeOrders,
		StatusMap:    m,
	}
}

// Result holds the frames produced by Transform together with what the run
// report needs.
type Result struct {
	Users       *frame.Frame
	OrdersClean *frame.Frame
	Analytics   *frame.Frame

	Stages    []report.StageRows
	Coercions []report.Coercion
	Join      join.Stats
}

// tracker times named stages, records their row counts and reports them to
// the log and the metrics backend.
type tracker struct {
	log    *zap.Logger
	stages []report.StageRows
}

func (t *tracker) do(stage string, fn func() (int, error)) error {
	start := time.Now()
	rows, err := fn()
	metrics.StepDone(stage, start, err)
	if err != nil {
		t.log.Error("stage failed",
			zap.String("stage", stage),
			zap.Duration("duration", durMS(start)),
			zap.Error(err))
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	t.stages = append(t.stages, report.StageRows{Stage: stage, Rows: rows})
	t.log.Info("stage ok",
		zap.String("stage", stage),
		zap.Int("rows", rows),
		zap.Duration("duration", durMS(start)))
	return nil
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// Transform turns raw text frames into the cleaned users table, orders_clean
// and the joined analytics table. It does no I/O.
//
// Stage order:
//
//	gate -> clean_orders -> clean_users -> [dedupe_orders] -> status ->
//	missing_flags -> time_parts -> range_check -> outliers -> join ->
//	orders_clean
//
// Edge cases:
//   - The outlier flag and the winsorized copy are both derived from the
//     cleaned amount, before the join and independently of each other.
//   - orders_clean is the analytics table minus every column the join
//     brought in, so user_id stays and country does not.
//
// Errors:
//   - The first failing stage aborts the run. The returned error is
//     "stage <name>: <cause>" and unwraps to the typed quality or join error.
func Transform(log *zap.Logger, orders, users *frame.Frame, opt Options) (Result, error) {
	t := &tracker{log: logger.OrNop(log)}
	var res Result

	if err := t.do("gate", func() (int, error) {
		return orders.Len(), opt.Gate.CheckRaw(orders, users)
	}); err != nil {
		return Result{}, err
	}

	var o *frame.Frame
	if err := t.do("clean_orders", func() (int, error) {
		var results []transformer.CoercionResult
		o, results = transformer.CleanOrders(orders)
		res.Coercions = append(res.Coercions, coercions("orders", results)...)
		return o.Len(), nil
	}); err != nil {
		return Result{}, err
	}

	if err := t.do("clean_users", func() (int, error) {
		var results []transformer.CoercionResult
		res.Users, results = transformer.CleanUsers(users)
		res.Coercions = append(res.Coercions, coercions("users", results)...)
		return res.Users.Len(), nil
	}); err != nil {
		return Result{}, err
	}

	if opt.DedupeOrders {
		if err := t.do("dedupe_orders", func() (int, error) {
			var err error
			o, err = transformer.DedupeLatest(o, []string{"order_id"}, "created_at")
			return rowsOf(o), err
		}); err != nil {
			return Result{}, err
		}
	}

	if err := t.do("status", func() (int, error) {
		var err error
		if o, err = transformer.NormalizeStatus(o); err != nil {
			return 0, err
		}
		if len(opt.StatusMap) > 0 {
			if o, err = transformer.ApplyMapping(o, "status_clean", opt.StatusMap); err != nil {
				return 0, err
			}
		}
		return o.Len(), nil
	}); err != nil {
		return Result{}, err
	}

	if err := t.do("missing_flags", func() (int, error) {
		var err error
		o, err = transformer.AddMissingFlags(o, "amount", "quantity")
		return rowsOf(o), err
	}); err != nil {
		return Result{}, err
	}

	if err := t.do("time_parts", func() (int, error) {
		var err error
		o, err = transformer.AddTimeParts(o, "created_at")
		return rowsOf(o), err
	}); err != nil {
		return Result{}, err
	}

	if err := t.do("range_check", func() (int, error) {
		return o.Len(), opt.Gate.CheckRanges(o)
	}); err != nil {
		return Result{}, err
	}

	if err := t.do("outliers", func() (int, error) {
		lo, hi := opt.WinsorLo, opt.WinsorHi
		if lo == 0 && hi == 0 {
			lo, hi = outlier.DefaultLoPct, outlier.DefaultHiPct
		}
		k := opt.OutlierK
		if k <= 0 {
			k = outlier.DefaultK
		}
		var err error
		if o, err = outlier.AddWinsorized(o, "amount", lo, hi); err != nil {
			return 0, err
		}
		if o, err = outlier.AddOutlierFlag(o, "amount", k); err != nil {
			return 0, err
		}
		metrics.Rows("amount_outliers", countTrue(o, "amount"+outlier.FlagSuffix))
		return o.Len(), nil
	}); err != nil {
		return Result{}, err
	}

	if err := t.do("join", func() (int, error) {
		out, stats, err := join.SafeLeftJoin(o, res.Users, "user_id", join.Options{
			Validate: join.ManyToOne,
			Suffix:   opt.JoinSuffix,
		})
		if err != nil {
			return 0, err
		}
		if err := join.CheckRowCount(o.Len(), out.Len()); err != nil {
			return 0, err
		}
		res.Analytics, res.Join = out, stats
		return out.Len(), nil
	}); err != nil {
		return Result{}, err
	}

	if err := t.do("orders_clean", func() (int, error) {
		var joined []string
		for _, name := range res.Analytics.Names() {
			if !o.Has(name) {
				joined = append(joined, name)
			}
		}
		res.OrdersClean = res.Analytics.Drop(joined...)
		return res.OrdersClean.Len(), nil
	}); err != nil {
		return Result{}, err
	}

	res.Stages = t.stages
	return res, nil
}

func coercions(dataset string, results []transformer.CoercionResult) []report.Coercion {
	out := make([]report.Coercion, 0, len(results))
	for _, r := range results {
		c := report.Coercion{
			Dataset: dataset,
			Column:  r.Column,
			Target:  string(r.Target),
			Outcome: r.Outcome.String(),
			Invalid: r.Invalid,
		}
		if r.Err != nil {
			c.Error = r.Err.Error()
		}
		out = append(out, c)
	}
	return out
}

func rowsOf(f *frame.Frame) int {
	if f == nil {
		return 0
	}
	return f.Len()
}

func countTrue(f *frame.Frame, col string) int {
	c, ok := f.Column(col)
	if !ok {
		return 0
	}
	n := 0
	for _, v := range c.V {
		if b, _ := v.(bool); b {
			n++
		}
	}
	return n
}
