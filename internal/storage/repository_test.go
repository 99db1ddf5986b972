package storage

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// scriptedRepo hands out one scriptedTx per Begin and records what happened
// to it.
type scriptedRepo struct {
	beginErr error
	ids      map[string]int64
	getErr   error
	txs      []*scriptedTx
}

func (r *scriptedRepo) Kind() string                               { return "scripted" }
func (r *scriptedRepo) Exec(ctx context.Context, sql string) error { return nil }
func (r *scriptedRepo) Close()                                     {}

func (r *scriptedRepo) Begin(context.Context) (Tx, error) {
	if r.beginErr != nil {
		return nil, r.beginErr
	}
	tx := &scriptedTx{repo: r}
	r.txs = append(r.txs, tx)
	return tx, nil
}

type scriptedTx struct {
	Tx // unused methods panic
	repo       *scriptedRepo
	committed  bool
	rolledBack bool
}

func (t *scriptedTx) GetOrCreate(ctx context.Context, table, column string, value any) (int64, error) {
	if t.repo.getErr != nil {
		return 0, t.repo.getErr
	}
	return t.repo.ids[table+"/"+value.(string)], nil
}

func (t *scriptedTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *scriptedTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

func TestAutoStore_CommitsEachLookup(t *testing.T) {
	t.Parallel()

	repo := &scriptedRepo{ids: map[string]int64{"base_stations/LTI": 1, "base_stations/BRADY": 6}}
	s := AutoStore{Repo: repo}
	ctx := context.Background()

	for _, c := range []struct {
		name string
		want int64
	}{{"LTI", 1}, {"BRADY", 6}} {
		got, err := s.GetOrCreate(ctx, "base_stations", "name", c.name)
		if err != nil || got != c.want {
			t.Fatalf("GetOrCreate(%s) = %d, %v; want %d", c.name, got, err, c.want)
		}
	}
	if len(repo.txs) != 2 {
		t.Fatalf("transactions = %d, want one per lookup", len(repo.txs))
	}
	for i, tx := range repo.txs {
		if !tx.committed || tx.rolledBack {
			t.Fatalf("tx %d: committed=%v rolledBack=%v", i, tx.committed, tx.rolledBack)
		}
	}
}

func TestAutoStore_RollsBackOnError(t *testing.T) {
	t.Parallel()

	boom := errors.New("relation does not exist")
	repo := &scriptedRepo{getErr: boom}
	_, err := AutoStore{Repo: repo}.GetOrCreate(context.Background(), "vehicle", "name", "van")
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "vehicle.name") {
		t.Fatalf("err = %v", err)
	}
	if tx := repo.txs[0]; tx.committed || !tx.rolledBack {
		t.Fatalf("committed=%v rolledBack=%v; want rollback only", tx.committed, tx.rolledBack)
	}

	repo = &scriptedRepo{beginErr: boom}
	if _, err := (AutoStore{Repo: repo}).GetOrCreate(context.Background(), "vehicle", "name", "van"); !errors.Is(err, boom) {
		t.Fatalf("begin failure: err = %v", err)
	}
}

func TestFactory(t *testing.T) {
	t.Parallel()

	var gotDSN string
	Register("scripted-ok", func(ctx context.Context, cfg Config) (Repository, error) {
		gotDSN = cfg.DSN
		return &scriptedRepo{}, nil
	})
	boom := errors.New("dial tcp: connection refused")
	Register("scripted-down", func(ctx context.Context, cfg Config) (Repository, error) { return nil, boom })

	repo, err := New(context.Background(), Config{Kind: "scripted-ok", DSN: "file:x.db"})
	if err != nil || repo.Kind() != "scripted" || gotDSN != "file:x.db" {
		t.Fatalf("New = %v, %v (dsn %q)", repo, err, gotDSN)
	}
	if _, err := New(context.Background(), Config{Kind: "scripted-down"}); !errors.Is(err, boom) {
		t.Fatalf("factory error not returned: %v", err)
	}
	_, err = New(context.Background(), Config{Kind: "does-not-exist"})
	if err == nil || err.Error() != "unsupported storage.kind=does-not-exist" {
		t.Fatalf("unknown kind: err = %v", err)
	}

	kinds := ListKinds()
	if !strings.Contains(strings.Join(kinds, ","), "scripted-down,scripted-ok") {
		t.Fatalf("ListKinds = %v; want both kinds, sorted", kinds)
	}
	kinds[0] = "mutated"
	if reflect.DeepEqual(kinds, ListKinds()) {
		t.Fatal("ListKinds shares its slice with the registry")
	}
}

func TestRegister_Replaces(t *testing.T) {
	t.Parallel()

	calls := 0
	Register("scripted-replace", func(ctx context.Context, cfg Config) (Repository, error) {
		calls++
		return &scriptedRepo{}, nil
	})
	Register("scripted-replace", func(ctx context.Context, cfg Config) (Repository, error) {
		calls += 10
		return &scriptedRepo{}, nil
	})
	if _, err := New(context.Background(), Config{Kind: "scripted-replace"}); err != nil {
		t.Fatal(err)
	}
	if calls != 10 {
		t.Fatalf("calls = %d; want only the second factory", calls)
	}
}

func TestDuplicate(t *testing.T) {
	t.Parallel()

	base := errors.New("UNIQUE constraint failed: encoder.bag_files_id, encoder.seconds")
	err := Duplicate(base)
	if !errors.Is(err, ErrDuplicate) || !errors.Is(err, base) {
		t.Fatalf("Duplicate() = %v; want both ErrDuplicate and base reachable", err)
	}
	if again := Duplicate(err); again != err {
		t.Fatalf("Duplicate() wrapped twice: %v", again)
	}
	if Duplicate(nil) != nil {
		t.Fatalf("Duplicate(nil) != nil")
	}
}
