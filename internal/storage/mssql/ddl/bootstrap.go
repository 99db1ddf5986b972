package ddl

import (
	"context"

	"bagetl/internal/schema"
	"bagetl/internal/storage"
)

// EnsureTables creates every missing table, in order.
func EnsureTables(ctx context.Context, repo storage.Repository, tables []schema.Table) error {
	return storage.ExecEach(ctx, repo, tables, CreateTable)
}
