package memory

import (
	"context"
	"fmt"

	"bagetl/internal/schema"
	"bagetl/internal/storage"
)

// init registers the "memory" backend. Its DSN is ignored.
func init() {
	storage.Register("memory", func(context.Context, storage.Config) (storage.Repository, error) {
		return NewRepository(), nil
	})
	storage.RegisterDDL("memory", ensureTables)
}

func ensureTables(ctx context.Context, repo storage.Repository, tables []schema.Table) error {
	m, ok := repo.(*Repository)
	if !ok {
		return fmt.Errorf("memory ddl: unexpected repository %T", repo)
	}
	return m.Define(ctx, tables)
}
