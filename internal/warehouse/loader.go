// Package warehouse loads committed frames into a storage.Repository.
//
// Every row gets a row_hash over all of its columns. Tables carry a UNIQUE
// constraint on row_hash and inserts dedupe on it, so rerunning the same
// batch inserts nothing new.
package warehouse

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"analyticsetl/internal/frame"
	"analyticsetl/internal/metrics"
	"analyticsetl/internal/storage"
	"analyticsetl/internal/transformer/builtin"
)

// RowHashColumn is the dedupe key added to every loaded table.
const RowHashColumn = "row_hash"

// DefaultBatchSize is used when Loader.BatchSize is not positive.
const DefaultBatchSize = 1000

// Logger is the minimal logging interface used by the loader.
// *zap.SugaredLogger and *log.Logger (via Printf adapters) satisfy it.
type Logger interface {
	Infof(format string, args ...any)
}

// Loader writes frames to warehouse tables named Prefix+name.
type Loader struct {
	Repo      storage.Repository
	Prefix    string
	BatchSize int
	Logger    Logger
}

// Result summarizes one table load.
type Result struct {
	Table    string
	Rows     int
	Inserted int64
}

type stdLogger struct{ l *log.Logger }

func (s stdLogger) Infof(format string, args ...any) { s.l.Printf(format, args...) }

func (l *Loader) logger() Logger {
	if l.Logger == nil {
		return stdLogger{log.New(io.Discard, "", 0)}
	}
	return l.Logger
}

// Load creates the table for f if needed and inserts its rows in batches.
//
// Errors:
//   - Repo is nil.
//   - f has a column whose kind has no warehouse type.
//   - any DDL or insert error from the backend (already inserted batches are
//     kept; a rerun fills in the rest thanks to row_hash dedupe).
func (l *Loader) Load(ctx context.Context, name string, f *frame.Frame) (Result, error) {
	if l.Repo == nil {
		return Result{}, fmt.Errorf("warehouse: Repo is required")
	}
	logf := l.logger().Infof
	table := l.Prefix + name
	res := Result{Table: table, Rows: f.Len()}

	hashed, err := builtin.Hash{TargetField: RowHashColumn, Overwrite: true}.Apply(f)
	if err != nil {
		return res, fmt.Errorf("warehouse %s: %w", table, err)
	}
	spec, err := TableSpecFor(table, hashed)
	if err != nil {
		return res, err
	}

	ddlStart := time.Now()
	if err := l.Repo.EnsureTables(ctx, []storage.TableSpec{spec}); err != nil {
		return res, fmt.Errorf("warehouse %s: %w", table, err)
	}
	logf("stage=warehouse_ddl table=%s ok duration=%s", table, durMS(ddlStart))

	batch := l.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	columns := hashed.Names()
	cols := hashed.Columns()
	dedupe := []string{RowHashColumn}

	loadStart := time.Now()
	for start := 0; start < hashed.Len(); start += batch {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+batch, hashed.Len())
		rows := make([][]any, 0, end-start)
		for r := start; r < end; r++ {
			row := make([]any, len(cols))
			for j, c := range cols {
				row[j] = bindValue(c.V[r])
			}
			rows = append(rows, row)
		}
		n, err := l.Repo.InsertRows(ctx, table, columns, rows, dedupe)
		if err != nil {
			return res, fmt.Errorf("warehouse %s: rows %d-%d: %w", table, start, end-1, err)
		}
		res.Inserted += n
		metrics.Batch()
	}
	metrics.Rows("warehouse_inserted", int(res.Inserted))
	logf("stage=warehouse_load table=%s rows=%d inserted=%d duration=%s", table, res.Rows, res.Inserted, durMS(loadStart))
	return res, nil
}

// TableSpecFor derives a table definition from f's column kinds.
func TableSpecFor(table string, f *frame.Frame) (storage.TableSpec, error) {
	spec := storage.TableSpec{Name: table}
	for _, c := range f.Columns() {
		typ, err := logicalType(c.Kind)
		if err != nil {
			return storage.TableSpec{}, fmt.Errorf("warehouse %s: column %q: %w", table, c.Name, err)
		}
		col := storage.ColumnSpec{Name: c.Name, Type: typ}
		if c.Name == RowHashColumn {
			notNull := false
			col.Nullable = &notNull
		}
		spec.Columns = append(spec.Columns, col)
	}
	if f.Has(RowHashColumn) {
		spec.Constraints = []storage.ConstraintSpec{{Kind: "unique", Columns: []string{RowHashColumn}}}
	}
	return spec, nil
}

func logicalType(k frame.Kind) (string, error) {
	switch k {
	case frame.KindText:
		return storage.TypeText, nil
	case frame.KindInt:
		return storage.TypeBigInt, nil
	case frame.KindFloat:
		return storage.TypeDouble, nil
	case frame.KindBool:
		return storage.TypeBoolean, nil
	case frame.KindTimestamp:
		return storage.TypeTimestamp, nil
	case frame.KindDate:
		return storage.TypeDate, nil
	default:
		return "", fmt.Errorf("no warehouse type for kind %s", k)
	}
}

// bindValue maps the frame's missing markers to SQL NULL.
func bindValue(v any) any {
	if frame.IsMissing(v) {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
