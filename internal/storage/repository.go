package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Repository is a warehouse sink for the analytics tables.
//
// Implementations are expected to be idempotent under reruns: EnsureTables
// creates only what is missing, and InsertRows with dedupe columns skips rows
// whose dedupe key already exists in the target table.
type Repository interface {
	Close()

	// EnsureTables creates every table in tables that does not exist yet.
	// Existing tables are left untouched, including their column types.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// InsertRows inserts rows into table. Each row is aligned with columns.
	//
	// When dedupeColumns is non-empty, rows whose dedupe key is already present
	// (in the table or earlier in the same batch) are skipped. The target table
	// must carry a UNIQUE constraint on those columns.
	//
	// It returns the number of rows actually inserted.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any, dedupeColumns []string) (int64, error)

	// CountRows returns the number of rows currently stored in table.
	CountRows(ctx context.Context, table string) (int64, error)
}

// Config selects and configures a backend.
type Config struct {
	// Kind is the registered backend name: "sqlite", "postgres" or "mssql".
	Kind string
	// DSN is passed to the backend driver unchanged.
	DSN string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under kind. It is meant to be called
// from a backend package's init function and panics on misuse.
func Register(kind string, f Factory) {
	if kind == "" {
		panic("storage: Register with empty kind")
	}
	if f == nil {
		panic("storage: Register with nil factory for " + kind)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic("storage: Register called twice for " + kind)
	}
	registry[kind] = f
}

// New opens the backend registered under cfg.Kind.
//
// Errors:
//   - unknown kind: the backend package was not imported (see storage/all).
//   - factory errors are returned unchanged.
func New(ctx context.Context, cfg Config) (Repository, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown backend %q (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend names in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
