// Package storage contains the storage-agnostic sink contracts: a
// Repository that opens transactions, the Tx operations the orchestrator
// needs, a backend factory and the DDL bootstrap registry.
//
// Backends register themselves from init(); import internal/storage/all to
// enable every built-in backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicate is wrapped into every error caused by a unique-constraint
// violation, whatever the backend error code.
var ErrDuplicate = errors.New("storage: duplicate key")

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
}

// Repository is one process-wide handle to a destination store.
type Repository interface {
	Kind() string
	Begin(ctx context.Context) (Tx, error)
	// Exec runs a statement outside any transaction, typically DDL.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Tx is a unit of work on a Repository. Every identifier is quoted and every
// value bound as a parameter by the implementation.
type Tx interface {
	// GetOrCreate returns the id of the row whose column equals value,
	// inserting it first when absent. column must be UNIQUE.
	GetOrCreate(ctx context.Context, table, column string, value any) (int64, error)
	// CopyFrom bulk-loads rows aligned to columns and returns the row count.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Delete(ctx context.Context, table string, where Predicate) (int64, error)
	// Select returns the matching rows ordered by orderBy. limit <= 0 means
	// no limit.
	Select(ctx context.Context, table string, columns []string, where Predicate, orderBy []string, limit int) ([][]any, error)
	// Upsert inserts one row or, when it collides on conflict, updates the
	// remaining columns. It returns the row id.
	Upsert(ctx context.Context, table string, columns []string, values []any, conflict []string) (int64, error)
	Update(ctx context.Context, table string, set []string, values []any, where Predicate) (int64, error)
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory constructs a Repository for a given Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. A later registration of
// the same kind replaces the earlier one.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens the backend named by cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered backend kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Duplicate wraps err so that errors.Is(err, ErrDuplicate) holds while the
// backend error stays reachable.
func Duplicate(err error) error {
	if err == nil || errors.Is(err, ErrDuplicate) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDuplicate, err)
}
