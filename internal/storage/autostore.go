package storage

import (
	"context"
	"fmt"
)

// AutoStore runs each GetOrCreate in its own short transaction and commits
// it at once. Ids it hands out therefore survive a rollback of whatever
// topic transaction is open at the time, which keeps a resolver cache in
// front of it valid.
type AutoStore struct {
	Repo Repository
}

// GetOrCreate implements resolver.Store.
func (s AutoStore) GetOrCreate(ctx context.Context, table, column string, value any) (id int64, err error) {
	tx, err := s.Repo.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	id, err = tx.GetOrCreate(ctx, table, column, value)
	if err != nil {
		return 0, fmt.Errorf("get-or-create %s.%s: %w", table, column, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", table, err)
	}
	return id, nil
}
