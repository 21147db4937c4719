// Package sqlite is the SQLite warehouse backend (modernc.org/sqlite, no cgo).
//
// SQLite has no native timestamp or date types. Timestamps are stored as
// RFC3339Nano text in UTC and dates as "2006-01-02" text, which sort and
// compare correctly as strings.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"analyticsetl/internal/storage"
)

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for the bundled library.
const maxParams = 32766

// Repo implements storage.Repository for SQLite.
type Repo struct {
	db *sql.DB

	mu    sync.RWMutex
	types map[string]map[string]string // table -> column -> logical type
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database at cfg.DSN (a file path or "file:" URI).
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes serialized and makes ":memory:"
	// databases behave as one database.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, types: map[string]map[string]string{}}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates missing tables with CREATE TABLE IF NOT EXISTS.
//
// The column types are remembered so InsertRows can format dates and
// timestamps for the right column.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		stmt, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		cols := make(map[string]string, len(t.Columns))
		for _, c := range t.Columns {
			cols[c.Name] = c.Type
		}
		r.mu.Lock()
		r.types[t.Name] = cols
		r.mu.Unlock()
	}
	return nil
}

// InsertRows inserts rows in chunks inside one transaction.
//
// With dedupe columns the statement is INSERT OR IGNORE, which relies on the
// table's UNIQUE constraint to skip both existing keys and repeats within the
// batch.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("insert %s: no columns", table)
	}

	r.mu.RLock()
	types := r.types[table]
	r.mu.RUnlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert %s: begin: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	chunk := maxParams / len(columns)
	var inserted int64
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		stmt, args, err := buildInsertSQL(table, columns, rows[start:end], types, len(dedupeColumns) > 0)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert %s: rows affected: %w", table, err)
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert %s: commit: %w", table, err)
	}
	return inserted, nil
}

func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqlIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func sqliteType(logical string) string {
	switch logical {
	case storage.TypeBigInt, storage.TypeBoolean:
		return "INTEGER"
	case storage.TypeDouble:
		return "REAL"
	default:
		return "TEXT"
	}
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	defs := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, c := range t.Columns {
		def := sqlIdent(c.Name) + " " + sqliteType(c.Type)
		if c.PrimaryKey {
			def += " PRIMARY KEY"
		}
		if !c.IsNullable() {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	for _, con := range t.Constraints {
		defs = append(defs, "UNIQUE ("+joinIdentList(con.Columns)+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqlIdent(t.Name), strings.Join(defs, ", ")), nil
}

func buildInsertSQL(table string, columns []string, rows [][]any, types map[string]string, ignore bool) (string, []any, error) {
	var b strings.Builder
	b.WriteString("INSERT ")
	if ignore {
		b.WriteString("OR IGNORE ")
	}
	b.WriteString("INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") VALUES ")

	ph := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("insert %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ph)
		for j, v := range row {
			args = append(args, bindValue(v, types[columns[j]]))
		}
	}
	return b.String(), args, nil
}

func bindValue(v any, logical string) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if t.IsZero() {
		return nil
	}
	if logical == storage.TypeDate {
		return t.UTC().Format(time.DateOnly)
	}
	return formatSQLiteTime(t)
}

func joinIdentList(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = sqlIdent(c)
	}
	return strings.Join(out, ", ")
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
