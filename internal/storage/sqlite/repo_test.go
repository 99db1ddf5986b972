package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bagetl/internal/etlerr"
	"bagetl/internal/schema"
	"bagetl/internal/storage"
)

func openTemp(t *testing.T) storage.Repository {
	t.Helper()
	prev := storage.Logf
	storage.Logf = func(string, ...any) {}
	t.Cleanup(func() { storage.Logf = prev })

	repo, err := storage.New(context.Background(), storage.Config{
		Kind: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "bagetl.db"),
	})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(repo.Close)

	rule, _ := schema.Default().Lookup("/parseTrigger")
	tables := append(schema.ReferenceTables(), rule.TableSpec())
	if err := storage.EnsureTables(context.Background(), repo, tables); err != nil {
		t.Fatalf("EnsureTables() error = %v", err)
	}
	return repo
}

func begin(t *testing.T, repo storage.Repository) storage.Tx {
	t.Helper()
	tx, err := repo.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return tx
}

func TestEnsureTables_Idempotent(t *testing.T) {
	repo := openTemp(t)
	if err := storage.EnsureTables(context.Background(), repo, schema.ReferenceTables()); err != nil {
		t.Fatalf("second EnsureTables() error = %v", err)
	}
	v, dirty, err := MigrateVersion(repo.(*wrappedRepo).DB())
	if err != nil || dirty || v != 1 {
		t.Fatalf("MigrateVersion() = %d, %v, %v; want 1, false, nil", v, dirty, err)
	}
}

func TestTx_GetOrCreate(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()
	tx := begin(t, repo)

	a, err := tx.GetOrCreate(ctx, schema.TableBaseStationMessages, "base_station_name", "LTI")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	b, _ := tx.GetOrCreate(ctx, schema.TableBaseStationMessages, "base_station_name", "Test Track")
	again, _ := tx.GetOrCreate(ctx, schema.TableBaseStationMessages, "base_station_name", "LTI")
	if a == b || a != again {
		t.Fatalf("ids LTI=%d TestTrack=%d LTI again=%d; want stable distinct ids", a, b, again)
	}
}

func TestTx_CopyDuplicateSavepoint(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()
	tx := begin(t, repo)

	cols := []string{"bag_files_id", "message_index", "ros_seconds", "ros_nanoseconds", "trigger_mode"}
	rows := [][]any{
		{int64(1), int64(0), int64(100), int64(0), "A"},
		{int64(1), int64(1), int64(100), int64(0), "B"},
	}
	if n, err := tx.CopyFrom(ctx, "trigger", cols, rows); err != nil || n != 2 {
		t.Fatalf("CopyFrom() = %d, %v; want 2, nil", n, err)
	}

	if err := tx.Savepoint(ctx, "topic"); err != nil {
		t.Fatalf("Savepoint() error = %v", err)
	}
	_, err := tx.CopyFrom(ctx, "trigger", cols, rows[:1])
	if !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("CopyFrom(dup) err = %v; want ErrDuplicate", err)
	}
	if err := tx.RollbackTo(ctx, "topic"); err != nil {
		t.Fatalf("RollbackTo() error = %v", err)
	}

	n, err := tx.Delete(ctx, "trigger", storage.Where(storage.Eq("bag_files_id", int64(1))))
	if err != nil || n != 2 {
		t.Fatalf("Delete() = %d, %v; want 2, nil", n, err)
	}
	if _, err := tx.CopyFrom(ctx, "trigger", cols, rows); err != nil {
		t.Fatalf("CopyFrom(retry) error = %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	rtx := begin(t, repo)
	got, err := rtx.Select(ctx, "trigger", []string{"ros_nanoseconds", "trigger_mode"},
		storage.Where(storage.Eq("bag_files_id", int64(1))), []string{"ros_seconds", "ros_nanoseconds", "message_index"}, 0)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	want := [][]any{{int64(0), "A"}, {int64(0), "B"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Select() mismatch (-want +got):\n%s", diff)
	}
}

func TestTx_UpsertAndUpdate(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()
	tx := begin(t, repo)

	cols := []string{"name", "vehicle_id", "file_path", "parsed"}
	id, err := tx.Upsert(ctx, schema.TableBagFiles, cols, []any{"s.bag", int64(1), "/a/s.bag", false}, []string{"name"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	id2, err := tx.Upsert(ctx, schema.TableBagFiles, cols, []any{"s.bag", int64(1), "/b/s.bag", false}, []string{"name"})
	if err != nil || id2 != id {
		t.Fatalf("Upsert(again) = %d, %v; want %d", id2, err, id)
	}
	if _, err := tx.Update(ctx, schema.TableBagFiles, []string{"parsed"}, []any{true}, storage.Where(storage.Eq("id", id))); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := tx.Select(ctx, schema.TableBagFiles, []string{"file_path", "parsed"}, storage.Where(storage.Eq("id", id)), nil, 1)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if diff := cmp.Diff([][]any{{"/b/s.bag", int64(1)}}, got); diff != "" {
		t.Fatalf("Select() mismatch (-want +got):\n%s", diff)
	}

	sid, err := tx.Upsert(ctx, schema.TableSensors, []string{"id", "product_name"}, []any{int64(14), "steer"}, []string{"id"})
	if err != nil || sid != 14 {
		t.Fatalf("Upsert(sensors) = %d, %v; want 14", sid, err)
	}
}

func TestNewRepository_Errors(t *testing.T) {
	t.Parallel()

	if _, _, err := NewRepository(context.Background(), Config{}); err == nil {
		t.Fatalf("NewRepository(empty DSN) err = nil")
	}
	_, _, err := NewRepository(context.Background(), Config{DSN: filepath.Join(t.TempDir(), "missing", "x.db")})
	var cerr *etlerr.SinkConnectivityError
	if !errors.As(err, &cerr) {
		t.Fatalf("NewRepository(bad path) err = %v; want SinkConnectivityError", err)
	}
}

func TestRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var closed bool
	fake := &Repository{}
	newRepository = func(context.Context, Config) (*Repository, func(), error) {
		return fake, func() { closed = true }, nil
	}
	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: "x.db"})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if w, ok := repo.(*wrappedRepo); !ok || w.Repository != fake {
		t.Fatalf("storage.New() = %T; want wrapped fake", repo)
	}
	repo.Close()
	if !closed {
		t.Fatalf("Close() did not invoke closeFn")
	}
}
