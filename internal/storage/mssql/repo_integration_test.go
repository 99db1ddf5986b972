//go:build integration

package mssql

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"bagetl/internal/schema"
	"bagetl/internal/storage"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MSSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MSSQL_TEST_DSN not set; skipping MSSQL integration tests")
	}
	return dsn
}

func TestIntegration_GetOrCreateAndDuplicate(t *testing.T) {
	dsn := getTestDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := storage.New(ctx, storage.Config{Kind: "mssql", DSN: dsn})
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

	a, err := tx.GetOrCreate(ctx, schema.TableBaseStationMessages, "base_station_name", "it-LTI")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, _ := tx.GetOrCreate(ctx, schema.TableBaseStationMessages, "base_station_name", "it-LTI")
	if a != b {
		t.Fatalf("GetOrCreate ids %d != %d", a, b)
	}

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
}
