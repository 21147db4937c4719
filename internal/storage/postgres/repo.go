package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"analyticsetl/internal/storage"
)

// maxParams is the Postgres wire-protocol limit on bind parameters.
const maxParams = 65535

/*
Repo implements storage.Repository for Postgres.

Tables may be schema-qualified; EnsureTables creates the schema first.
Dedupe inserts use ON CONFLICT (...) DO NOTHING, so the dedupe columns must
match a UNIQUE constraint on the target table.
*/
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		schemaSQL, tableSQL, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if schemaSQL != "" {
			if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create schema for %s: %w", t.Name, err)
			}
		}
		if _, err := r.pool.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertRows inserts rows in parameter-bounded chunks within one transaction.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("insert %s: no columns", table)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert %s: begin: %w", table, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	chunk := maxParams / len(columns)
	var inserted int64
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		stmt, args, err := buildInsertSQL(table, columns, rows[start:end], dedupeColumns)
		if err != nil {
			return 0, err
		}
		tag, err := tx.Exec(ctx, stmt, args...)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
		inserted += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("insert %s: commit: %w", table, err)
	}
	return inserted, nil
}

func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgTableIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// pgTableIdent quotes each part of a possibly schema-qualified name.
func pgTableIdent(name string) string {
	schema, table := storage.SplitQualifiedName(name)
	if schema == "" {
		return pgIdent(table)
	}
	return pgIdent(schema) + "." + pgIdent(table)
}

func pgType(logical string) string {
	switch logical {
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeDouble:
		return "DOUBLE PRECISION"
	case storage.TypeBoolean:
		return "BOOLEAN"
	case storage.TypeTimestamp:
		return "TIMESTAMPTZ"
	case storage.TypeDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

func buildColumnDef(c storage.ColumnSpec) string {
	var b strings.Builder
	b.WriteString(pgIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(pgType(c.Type))
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if !c.IsNullable() {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

func buildBaseConstraints(t storage.TableSpec) []string {
	out := make([]string, 0, len(t.Constraints))
	for _, con := range t.Constraints {
		out = append(out, "UNIQUE ("+joinIdentList(con.Columns)+")")
	}
	return out
}

func buildCreateSQL(t storage.TableSpec) (schemaSQL, tableSQL string, err error) {
	if err := t.Validate(); err != nil {
		return "", "", err
	}
	if schema, _ := storage.SplitQualifiedName(t.Name); schema != "" {
		schemaSQL = "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema) + ";"
	}

	defs := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, c := range t.Columns {
		defs = append(defs, buildColumnDef(c))
	}
	defs = append(defs, buildBaseConstraints(t)...)

	tableSQL = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", pgTableIdent(t.Name), strings.Join(defs, ",\n  "))
	return schemaSQL, tableSQL, nil
}

func buildInsertSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgTableIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("insert %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	if len(dedupeColumns) > 0 {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(joinIdentList(dedupeColumns))
		b.WriteString(") DO NOTHING")
	}
	b.WriteString(";")
	return b.String(), args, nil
}

func joinIdentList(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = pgIdent(c)
	}
	return strings.Join(out, ", ")
}
