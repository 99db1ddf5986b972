// Package postgres implements a Postgres repository using pgx v5. Bulk loads
// use COPY; everything else is parameterized SQL inside a pgx transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bagetl/internal/etlerr"
	"bagetl/internal/storage"
	"bagetl/internal/storage/sqldb"
)

// uniqueViolation is the SQLSTATE of a unique-constraint failure.
const uniqueViolation = "23505"

// Config holds Postgres repository configuration.
type Config struct {
	DSN string // connection string for pgxpool
}

// Repository is a Postgres-backed storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for
// cleanup. The pool is pinged once so that a bad DSN fails here.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, &etlerr.SinkConnectivityError{Kind: "postgres", Op: "pgxpool", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, &etlerr.SinkConnectivityError{Kind: "postgres", Op: "ping", Err: err}
	}
	return &Repository{pool: pool, cfg: cfg}, pool.Close, nil
}

// Kind implements storage.Repository.
func (r *Repository) Kind() string { return "postgres" }

// Exec implements storage.Repository.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

// Begin implements storage.Repository.
func (r *Repository) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &etlerr.SinkConnectivityError{Kind: "postgres", Op: "begin", Err: err}
	}
	return &Tx{tx: tx}, nil
}

// dialect renders Postgres identifiers and $n parameters.
type dialect struct{}

func (dialect) Quote(ident string) string { return storage.QuoteWith(ident, `"`, `"`) }
func (dialect) Placeholder(n int) string  { return "$" + strconv.Itoa(n) }

var pg dialect

// Tx is a storage.Tx over a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

var _ storage.Tx = (*Tx)(nil)

func wrap(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.Duplicate(err)
	}
	return err
}

// GetOrCreate implements storage.Tx with INSERT ... ON CONFLICT ... RETURNING.
func (t *Tx) GetOrCreate(ctx context.Context, table, column string, value any) (int64, error) {
	q := sqldb.OnConflict(pg, table, []string{column}, []string{column}, "id")
	var id int64
	if err := t.tx.QueryRow(ctx, q, value).Scan(&id); err != nil {
		return 0, wrap(err)
	}
	return id, nil
}

// Upsert implements storage.Tx.
func (t *Tx) Upsert(ctx context.Context, table string, columns []string, values []any, conflict []string) (int64, error) {
	if len(columns) != len(values) {
		return 0, fmt.Errorf("upsert %s: %d columns, %d values", table, len(columns), len(values))
	}
	var id int64
	if err := t.tx.QueryRow(ctx, sqldb.OnConflict(pg, table, columns, conflict, "id"), values...).Scan(&id); err != nil {
		return 0, wrap(err)
	}
	return id, nil
}

// CopyFrom implements storage.Tx using the COPY protocol.
func (t *Tx) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := t.tx.CopyFrom(ctx, splitFQN(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return n, wrap(fmt.Errorf("copy %s: %s (%s): %w", table, pgErr.Detail, pgErr.SQLState(), err))
		}
		return n, wrap(fmt.Errorf("copy %s: %w", table, err))
	}
	return n, nil
}

// Delete implements storage.Tx.
func (t *Tx) Delete(ctx context.Context, table string, where storage.Predicate) (int64, error) {
	w, args := where.SQL(pg, 1)
	tag, err := t.tx.Exec(ctx, "DELETE FROM "+pg.Quote(table)+w, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Update implements storage.Tx.
func (t *Tx) Update(ctx context.Context, table string, set []string, values []any, where storage.Predicate) (int64, error) {
	if len(set) == 0 || len(set) != len(values) {
		return 0, fmt.Errorf("update %s: %d columns, %d values", table, len(set), len(values))
	}
	parts := make([]string, len(set))
	for i, c := range set {
		parts[i] = pg.Quote(c) + " = " + pg.Placeholder(i+1)
	}
	w, wargs := where.SQL(pg, len(set)+1)
	tag, err := t.tx.Exec(ctx, "UPDATE "+pg.Quote(table)+" SET "+strings.Join(parts, ", ")+w,
		append(append([]any{}, values...), wargs...)...)
	if err != nil {
		return 0, wrap(fmt.Errorf("update %s: %w", table, err))
	}
	return tag.RowsAffected(), nil
}

// Select implements storage.Tx.
func (t *Tx) Select(ctx context.Context, table string, columns []string, where storage.Predicate, orderBy []string, limit int) ([][]any, error) {
	_, args := where.SQL(pg, 1)
	rows, err := t.tx.Query(ctx, sqldb.SelectSQL(pg, table, columns, where, orderBy, limit), args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// Savepoint implements storage.Tx.
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "SAVEPOINT "+pg.Quote(name))
	return err
}

// RollbackTo implements storage.Tx.
func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+pg.Quote(name))
	return err
}

// Commit implements storage.Tx.
func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback implements storage.Tx. Rolling back a finished transaction is a
// no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
