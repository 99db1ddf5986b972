//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"bagetl/internal/schema"
	"bagetl/internal/storage"
)

// TestIntegration_CopyAndDuplicate runs against a live server when
// BAGETL_PG_DSN is set.
func TestIntegration_CopyAndDuplicate(t *testing.T) {
	dsn := os.Getenv("BAGETL_PG_DSN")
	if dsn == "" {
		t.Skip("BAGETL_PG_DSN not set")
	}
	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{Kind: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()

	rule, _ := schema.Default().Lookup("/parseTrigger")
	if err := storage.EnsureTables(ctx, repo, append(schema.ReferenceTables(), rule.TableSpec())); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	tx, err := repo.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Rollback(ctx)

	cols := []string{"bag_files_id", "message_index", "ros_seconds", "ros_nanoseconds"}
	row := [][]any{{int64(-1), int64(0), int64(1), int64(2)}}
	if _, err := tx.CopyFrom(ctx, "trigger", cols, row); err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if err := tx.Savepoint(ctx, "dup"); err != nil {
		t.Fatalf("Savepoint: %v", err)
	}
	if _, err := tx.CopyFrom(ctx, "trigger", cols, row); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("CopyFrom(dup) err = %v; want ErrDuplicate", err)
	}
	if err := tx.RollbackTo(ctx, "dup"); err != nil {
		t.Fatalf("RollbackTo: %v", err)
	}
}
