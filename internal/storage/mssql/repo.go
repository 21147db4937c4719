package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"analyticsetl/internal/storage"
)

// maxParams stays under SQL Server's 2100 parameter limit per statement.
const maxParams = 2000

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Dedupe inserts use INSERT ... SELECT FROM (VALUES ...) WHERE NOT EXISTS.
// Unlike Postgres ON CONFLICT DO NOTHING, that statement does not collapse
// repeated keys inside the VALUES list, so each batch is deduped in memory
// first (first occurrence wins).
//
// This package does not import a driver. The "sqlserver" driver is
// registered by storage/all.
type Repo struct {
	db dbConn
}

func init() {
	storage.Register("mssql", New)
}

// New opens a connection pool through the "sqlserver" driver and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(64)
	raw.SetMaxIdleConns(64)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Repo{db: &sqlDB{db: raw}}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		stmt, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("insert %s: no columns", table)
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("insert %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
	}
	if len(dedupeColumns) > 0 {
		var err error
		if rows, err = dedupeRowsByColumns(rows, columns, dedupeColumns); err != nil {
			return 0, fmt.Errorf("insert %s: %w", table, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert %s: begin: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	chunk := max(1, maxParams/len(columns))
	var inserted int64
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		var (
			stmt string
			args []any
		)
		if len(dedupeColumns) > 0 {
			stmt, args = buildInsertNotExistsSQL(table, columns, rows[start:end], dedupeColumns)
		} else {
			stmt, args = buildBulkInsertSQL(table, columns, rows[start:end])
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
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT_BIG(*) FROM "+mssqlTableIdent(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// mssqlType maps a logical type. Text columns that take part in a unique
// constraint are bounded because SQL Server cannot index NVARCHAR(MAX).
func mssqlType(logical string, indexed bool) string {
	switch logical {
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeDouble:
		return "FLOAT"
	case storage.TypeBoolean:
		return "BIT"
	case storage.TypeTimestamp:
		return "DATETIMEOFFSET"
	case storage.TypeDate:
		return "DATE"
	default:
		if indexed {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

func mssqlColumnDef(c storage.ColumnSpec, indexed bool) string {
	def := mssqlIdent(c.Name) + " " + mssqlType(c.Type, indexed)
	if c.PrimaryKey {
		def += " PRIMARY KEY"
	}
	if c.IsNullable() && !c.PrimaryKey {
		def += " NULL"
	} else {
		def += " NOT NULL"
	}
	return def
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	unique := t.UniqueColumns()
	defs := make([]string, 0, len(t.Columns)+len(t.Constraints))
	for _, c := range t.Columns {
		defs = append(defs, mssqlColumnDef(c, unique[c.Name]))
	}
	for _, con := range t.Constraints {
		defs = append(defs, "UNIQUE ("+joinIdentList(con.Columns)+")")
	}
	return wrapCreateIfMissing(t.Name, strings.Join(defs, ", ")), nil
}

func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(tableName, "'", "''"),
		mssqlTableIdent(tableName),
		innerDefs,
	)
}

func writeValues(b *strings.Builder, columns []string, rows [][]any) []any {
	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return args
}

func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") VALUES ")
	args := writeValues(&b, columns, rows)
	return b.String(), args
}

func buildInsertNotExistsSQL(table string, columns []string, rows [][]any, dedupeColumns []string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("v.")
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(" FROM (VALUES ")
	args := writeValues(&b, columns, rows)
	b.WriteString(") AS v(")
	b.WriteString(joinIdentList(columns))
	b.WriteString(") WHERE NOT EXISTS (SELECT 1 FROM ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" t WHERE ")
	for i, dc := range dedupeColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("t.")
		b.WriteString(mssqlIdent(dc))
		b.WriteString(" = v.")
		b.WriteString(mssqlIdent(dc))
	}
	b.WriteString(")")
	return b.String(), args
}

// dedupeRowsByColumns keeps the first row for each dedupe key, preserving
// the order of first occurrences.
func dedupeRowsByColumns(rows [][]any, columns []string, dedupeColumns []string) ([][]any, error) {
	idx := make([]int, len(dedupeColumns))
	for i, dc := range dedupeColumns {
		j := indexOf(columns, dc)
		if j < 0 {
			return nil, fmt.Errorf("dedupe column %q not in insert columns %v", dc, columns)
		}
		idx[i] = j
	}
	seen := make(map[string]struct{}, len(rows))
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		k := storage.DedupeKey(row, idx)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}
	return out, nil
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

func joinIdentList(columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = mssqlIdent(c)
	}
	return strings.Join(out, ", ")
}

// Narrow database/sql seams so the insert path can be tested without a server.

type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
	BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error)
	Close() error
}

type txConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Commit() error
	Rollback() error
}

type rowScanner interface {
	Scan(dest ...any) error
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (txConn, error) {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *sqlDB) Close() error { return s.db.Close() }
