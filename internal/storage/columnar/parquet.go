// Package columnar writes and reads frames as Parquet snapshots.
//
// Type mapping:
//
//	text      -> utf8
//	int       -> int64
//	float     -> float64
//	bool      -> boolean
//	timestamp -> timestamp[us, tz=UTC]
//	date      -> date32
//
// Missing values are Parquet nulls.
package columnar

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"analyticsetl/internal/frame"
)

// Pool is the Go memory allocator used by Arrow.
var Pool = memory.NewGoAllocator()

var timestampUTC = &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}

func arrowType(k frame.Kind) (arrow.DataType, error) {
	switch k {
	case frame.KindText:
		return arrow.BinaryTypes.String, nil
	case frame.KindInt:
		return arrow.PrimitiveTypes.Int64, nil
	case frame.KindFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case frame.KindBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case frame.KindTimestamp:
		return timestampUTC, nil
	case frame.KindDate:
		return arrow.FixedWidthTypes.Date32, nil
	default:
		return nil, fmt.Errorf("no arrow type for kind %s", k)
	}
}

// Schema returns the Arrow schema for f.
func Schema(f *frame.Frame) (*arrow.Schema, error) {
	cols := f.Columns()
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		t, err := arrowType(c.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		fields[i] = arrow.Field{Name: c.Name, Type: t, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

// Write encodes f as a single-row-group Snappy-compressed Parquet file.
func Write(w io.Writer, f *frame.Frame) error {
	schema, err := Schema(f)
	if err != nil {
		return err
	}

	b := array.NewRecordBuilder(Pool, schema)
	defer b.Release()

	for i, c := range f.Columns() {
		if err := appendColumn(b.Field(i), c); err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return fmt.Errorf("parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("parquet write: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("parquet close: %w", err)
	}
	return nil
}

// WriteFile writes f to path, replacing any existing file.
func WriteFile(path string, f *frame.Frame) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("columnar: create %s: %w", path, err)
	}
	// Hide Close from the parquet writer so the file is closed exactly once.
	if err := Write(struct{ io.Writer }{out}, f); err != nil {
		out.Close()
		return fmt.Errorf("columnar: %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("columnar: close %s: %w", path, err)
	}
	return nil
}

func appendColumn(fb array.Builder, c frame.Column) error {
	for row, v := range c.V {
		if frame.IsMissing(v) {
			fb.AppendNull()
			continue
		}
		if err := appendValue(fb, v); err != nil {
			return fmt.Errorf("row %d: %w", row, err)
		}
	}
	return nil
}

func appendValue(fb array.Builder, v any) error {
	switch b := fb.(type) {
	case *array.StringBuilder:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", v)
		}
		b.Append(s)
	case *array.Int64Builder:
		switch n := v.(type) {
		case int64:
			b.Append(n)
		case int:
			b.Append(int64(n))
		default:
			return fmt.Errorf("want int64, got %T", v)
		}
	case *array.Float64Builder:
		x, ok := frame.Float(v)
		if !ok {
			return fmt.Errorf("want float64, got %T", v)
		}
		b.Append(x)
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return fmt.Errorf("want bool, got %T", v)
		}
		b.Append(x)
	case *array.TimestampBuilder:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("want time.Time, got %T", v)
		}
		b.Append(arrow.Timestamp(t.UTC().UnixMicro()))
	case *array.Date32Builder:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("want time.Time, got %T", v)
		}
		b.Append(arrow.Date32FromTime(t))
	default:
		return fmt.Errorf("unsupported builder %T", fb)
	}
	return nil
}

// ReadFile reads a Parquet file written by Write back into a frame.
func ReadFile(ctx context.Context, path string) (*frame.Frame, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("columnar: open %s: %w", path, err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, Pool)
	if err != nil {
		return nil, fmt.Errorf("columnar: reader %s: %w", path, err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("columnar: read %s: %w", path, err)
	}
	defer tbl.Release()

	n := int(tbl.NumCols())
	cols := make([]frame.Column, n)
	for i := 0; i < n; i++ {
		field := tbl.Schema().Field(i)
		c, err := readColumn(field, tbl.Column(i).Data().Chunks())
		if err != nil {
			return nil, fmt.Errorf("columnar: %s: column %q: %w", path, field.Name, err)
		}
		cols[i] = c
	}
	return frame.New(cols...)
}

func readColumn(field arrow.Field, chunks []arrow.Array) (frame.Column, error) {
	c := frame.Column{Name: field.Name, V: []any{}}
	switch field.Type.ID() {
	case arrow.STRING:
		c.Kind = frame.KindText
	case arrow.INT64:
		c.Kind = frame.KindInt
	case arrow.FLOAT64:
		c.Kind = frame.KindFloat
	case arrow.BOOL:
		c.Kind = frame.KindBool
	case arrow.TIMESTAMP:
		c.Kind = frame.KindTimestamp
	case arrow.DATE32:
		c.Kind = frame.KindDate
	default:
		return frame.Column{}, fmt.Errorf("unsupported arrow type %s", field.Type)
	}

	for _, chunk := range chunks {
		for i := 0; i < chunk.Len(); i++ {
			if chunk.IsNull(i) {
				c.V = append(c.V, nil)
				continue
			}
			switch a := chunk.(type) {
			case *array.String:
				c.V = append(c.V, a.Value(i))
			case *array.Int64:
				c.V = append(c.V, a.Value(i))
			case *array.Float64:
				c.V = append(c.V, a.Value(i))
			case *array.Boolean:
				c.V = append(c.V, a.Value(i))
			case *array.Timestamp:
				unit := a.DataType().(*arrow.TimestampType).Unit
				c.V = append(c.V, a.Value(i).ToTime(unit).UTC())
			case *array.Date32:
				c.V = append(c.V, a.Value(i).ToTime().UTC())
			default:
				return frame.Column{}, fmt.Errorf("unexpected array %T", chunk)
			}
		}
	}
	return c, nil
}
