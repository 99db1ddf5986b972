package storage

import (
	"context"
	"fmt"
	"sync"

	"bagetl/internal/schema"
)

// DDLBootstrapper creates the given tables on repo if they do not exist.
// Backends register one per storage kind at init time.
type DDLBootstrapper func(ctx context.Context, repo Repository, tables []schema.Table) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper for kind.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTables creates tables on repo using the bootstrapper registered for
// repo.Kind(). Tables are created in the given order, so parents go first.
func EnsureTables(ctx context.Context, repo Repository, tables []schema.Table) error {
	ddlMu.RLock()
	fn, ok := ddlFns[repo.Kind()]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", repo.Kind())
	}
	return fn(ctx, repo, tables)
}

// ExecEach renders every table with build and runs the statements in order.
// Backends whose DDL is a plain CREATE TABLE IF NOT EXISTS use it as their
// bootstrapper body.
func ExecEach(ctx context.Context, repo Repository, tables []schema.Table, build func(schema.Table) (string, error)) error {
	for _, t := range tables {
		sql, err := build(t)
		if err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		if err := repo.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create %s: %w", t.Name, err)
		}
	}
	return nil
}
