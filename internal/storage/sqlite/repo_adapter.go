package sqlite

import (
	"context"

	"bagetl/internal/schema"
	"bagetl/internal/storage"
	sqliteddl "bagetl/internal/storage/sqlite/ddl"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid opening a database.
var newRepository = NewRepository

// wrappedRepo adds Close to *Repository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

// Close implements storage.Repository.Close.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("sqlite", ensureTables)
}

// ensureTables migrates the reference tables and creates every other table
// from its definition.
func ensureTables(ctx context.Context, repo storage.Repository, tables []schema.Table) error {
	w, ok := repo.(*wrappedRepo)
	if !ok {
		return sqliteddl.EnsureTables(ctx, repo, tables)
	}
	if err := MigrateUp(w.DB()); err != nil {
		return err
	}
	ref := make(map[string]bool)
	for _, t := range schema.ReferenceTables() {
		ref[t.Name] = true
	}
	var rest []schema.Table
	for _, t := range tables {
		if !ref[t.Name] {
			rest = append(rest, t)
		}
	}
	return sqliteddl.EnsureTables(ctx, repo, rest)
}
