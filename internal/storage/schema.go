package storage

import (
	"fmt"
	"strings"
)

// Logical column types. Backends map them to native types.
const (
	TypeText      = "text"
	TypeBigInt    = "bigint"
	TypeDouble    = "double"
	TypeBoolean   = "boolean"
	TypeTimestamp = "timestamp"
	TypeDate      = "date"
)

// TableSpec describes a warehouse table.
type TableSpec struct {
	// Name may be schema-qualified ("analytics.orders") on backends that
	// support schemas.
	Name        string
	Columns     []ColumnSpec
	Constraints []ConstraintSpec
}

// ColumnSpec is one column of a TableSpec.
type ColumnSpec struct {
	Name string
	// Type is one of the logical Type* constants.
	Type string
	// Nullable defaults to true when nil.
	Nullable *bool
	// PrimaryKey marks a single-column primary key.
	PrimaryKey bool
}

// IsNullable reports whether the column accepts NULL.
func (c ColumnSpec) IsNullable() bool { return c.Nullable == nil || *c.Nullable }

// ConstraintSpec is a table-level constraint. Only "unique" is supported.
type ConstraintSpec struct {
	Kind    string
	Columns []string
}

// Validate checks names, types and constraint references.
func (t TableSpec) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table spec: empty name")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %s: column with empty name", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
		switch c.Type {
		case TypeText, TypeBigInt, TypeDouble, TypeBoolean, TypeTimestamp, TypeDate:
		default:
			return fmt.Errorf("table %s: column %q: unknown type %q", t.Name, c.Name, c.Type)
		}
	}
	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return fmt.Errorf("table %s: unsupported constraint %q", t.Name, con.Kind)
		}
		if len(con.Columns) == 0 {
			return fmt.Errorf("table %s: unique constraint without columns", t.Name)
		}
		for _, col := range con.Columns {
			if !seen[col] {
				return fmt.Errorf("table %s: unique constraint references unknown column %q", t.Name, col)
			}
		}
	}
	return nil
}

// UniqueColumns returns the set of columns that take part in any unique
// constraint or primary key.
func (t TableSpec) UniqueColumns() map[string]bool {
	out := map[string]bool{}
	for _, c := range t.Columns {
		if c.PrimaryKey {
			out[c.Name] = true
		}
	}
	for _, con := range t.Constraints {
		for _, col := range con.Columns {
			out[col] = true
		}
	}
	return out
}

// SplitQualifiedName splits "schema.table" into its parts. Unqualified names
// return an empty schema.
func SplitQualifiedName(name string) (schema, table string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}
