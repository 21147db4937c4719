package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"analyticsetl/internal/storage"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "warehouse.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo.(*Repo)
}

func analyticsSpec() storage.TableSpec {
	return storage.TableSpec{
		Name: "analytics",
		Columns: []storage.ColumnSpec{
			{Name: "order_id", Type: storage.TypeText},
			{Name: "amount", Type: storage.TypeDouble},
			{Name: "created_at", Type: storage.TypeTimestamp},
			{Name: "date", Type: storage.TypeDate},
			{Name: "row_hash", Type: storage.TypeText},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"row_hash"}}},
	}
}

func TestInsertRows_DedupeMakesRerunsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	if err := repo.EnsureTables(ctx, []storage.TableSpec{analyticsSpec()}); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	// Second call must be a no-op.
	if err := repo.EnsureTables(ctx, []storage.TableSpec{analyticsSpec()}); err != nil {
		t.Fatalf("EnsureTables again: %v", err)
	}

	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	cols := []string{"order_id", "amount", "created_at", "date", "row_hash"}
	rows := [][]any{
		{"o1", 10.0, ts, ts.Truncate(24 * time.Hour), "h1"},
		{"o2", nil, nil, nil, "h2"},
		{"o2", nil, nil, nil, "h2"},
	}

	n, err := repo.InsertRows(ctx, "analytics", cols, rows, []string{"row_hash"})
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 inserted (in-batch duplicate skipped), got %d", n)
	}

	n, err = repo.InsertRows(ctx, "analytics", cols, rows, []string{"row_hash"})
	if err != nil {
		t.Fatalf("InsertRows rerun: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 inserted on rerun, got %d", n)
	}

	total, err := repo.CountRows(ctx, "analytics")
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 rows, got %d", total)
	}

	var created, date string
	err = repo.db.QueryRowContext(ctx, `SELECT created_at, date FROM analytics WHERE order_id = 'o1'`).Scan(&created, &date)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if created != "2024-01-01T10:00:00Z" || date != "2024-01-01" {
		t.Fatalf("unexpected stored times: %q %q", created, date)
	}
}

func TestInsertRows_WithoutDedupeFailsOnUniqueViolation(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	if err := repo.EnsureTables(ctx, []storage.TableSpec{analyticsSpec()}); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	cols := []string{"order_id", "row_hash"}
	rows := [][]any{{"o1", "h1"}, {"o1", "h1"}}
	if _, err := repo.InsertRows(ctx, "analytics", cols, rows, nil); err == nil {
		t.Fatalf("expected unique violation")
	}
	total, err := repo.CountRows(ctx, "analytics")
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if total != 0 {
		t.Fatalf("failed insert must roll back, got %d rows", total)
	}
}

func TestInsertRows_RowWidthMismatch(t *testing.T) {
	_, _, err := buildInsertSQL("t", []string{"a", "b"}, [][]any{{1}}, nil, false)
	if err == nil {
		t.Fatalf("expected width mismatch error")
	}
}

func TestBuildCreateSQL(t *testing.T) {
	notNull := false
	spec := storage.TableSpec{
		Name: `we"ird`,
		Columns: []storage.ColumnSpec{
			{Name: "id", Type: storage.TypeBigInt, PrimaryKey: true},
			{Name: "flag", Type: storage.TypeBoolean, Nullable: &notNull},
			{Name: "amount", Type: storage.TypeDouble},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"flag", "amount"}}},
	}
	got, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "we""ird" ("id" INTEGER PRIMARY KEY, "flag" INTEGER NOT NULL, "amount" REAL, UNIQUE ("flag", "amount"))`
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestBuildInsertSQL_Placeholders(t *testing.T) {
	stmt, args, err := buildInsertSQL("t", []string{"a", "b"}, [][]any{{1, 2}, {3, 4}}, nil, true)
	if err != nil {
		t.Fatalf("buildInsertSQL: %v", err)
	}
	if !strings.HasPrefix(stmt, `INSERT OR IGNORE INTO "t"`) || !strings.HasSuffix(stmt, "VALUES (?, ?), (?, ?)") {
		t.Fatalf("unexpected statement: %s", stmt)
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
}
