// Package sqldb implements storage.Repository and storage.Tx on top of
// database/sql. Backends supply a Dialect for the statements that differ
// between engines and, optionally, a faster bulk loader.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bagetl/internal/etlerr"
	"bagetl/internal/storage"
)

// Dialect extends storage.Dialect with the statements that have no portable
// SQL form.
type Dialect interface {
	storage.Dialect
	// GetOrCreate returns a single statement that inserts value into
	// table.column unless present and yields the row id. When returning is
	// false the id is read from sql.Result.LastInsertId.
	GetOrCreate(table, column string) (query string, returning bool)
	// Upsert is like GetOrCreate for a whole row keyed by conflict.
	Upsert(table string, columns, conflict []string) (query string, returning bool)
	Savepoint(name string) string
	RollbackTo(name string) string
	// IsDuplicate reports whether err is a unique-constraint violation.
	IsDuplicate(err error) bool
}

// BulkFn loads rows into table within tx.
type BulkFn func(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error)

// Repository is a storage.Repository over a *sql.DB. It does not own the
// handle; backends close it.
type Repository struct {
	db      *sql.DB
	kind    string
	dialect Dialect
	bulk    BulkFn
}

// New returns a Repository. A nil bulk falls back to multi-row INSERTs with
// at most maxParams bind parameters per statement.
func New(db *sql.DB, kind string, d Dialect, bulk BulkFn, maxParams int) *Repository {
	r := &Repository{db: db, kind: kind, dialect: d, bulk: bulk}
	if r.bulk == nil {
		r.bulk = MultiRowInsert(d, maxParams)
	}
	return r
}

// DB returns the underlying handle.
func (r *Repository) DB() *sql.DB { return r.db }

// Kind implements storage.Repository.
func (r *Repository) Kind() string { return r.kind }

// Begin implements storage.Repository. A failure to obtain a connection is
// reported as a SinkConnectivityError.
func (r *Repository) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &etlerr.SinkConnectivityError{Kind: r.kind, Op: "begin", Err: err}
	}
	return &Tx{tx: tx, d: r.dialect, bulk: r.bulk}, nil
}

// Exec implements storage.Repository.
func (r *Repository) Exec(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%s: exec: %w", r.kind, err)
	}
	return nil
}

// Tx is a storage.Tx over a *sql.Tx.
type Tx struct {
	tx   *sql.Tx
	d    Dialect
	bulk BulkFn
}

var _ storage.Tx = (*Tx)(nil)

func (t *Tx) wrap(err error) error {
	if err != nil && t.d.IsDuplicate(err) {
		return storage.Duplicate(err)
	}
	return err
}

// GetOrCreate implements storage.Tx.
func (t *Tx) GetOrCreate(ctx context.Context, table, column string, value any) (int64, error) {
	q, returning := t.d.GetOrCreate(table, column)
	return t.returnID(ctx, q, returning, value)
}

// Upsert implements storage.Tx. When columns include "id" that value is
// returned as is.
func (t *Tx) Upsert(ctx context.Context, table string, columns []string, values []any, conflict []string) (int64, error) {
	if len(columns) != len(values) {
		return 0, fmt.Errorf("upsert %s: %d columns, %d values", table, len(columns), len(values))
	}
	q, returning := t.d.Upsert(table, columns, conflict)
	id, err := t.returnID(ctx, q, returning, values...)
	if err != nil {
		return 0, err
	}
	for i, c := range columns {
		if c == "id" {
			if v, ok := values[i].(int64); ok {
				return v, nil
			}
		}
	}
	return id, nil
}

func (t *Tx) returnID(ctx context.Context, q string, returning bool, args ...any) (int64, error) {
	if returning {
		var id int64
		if err := t.tx.QueryRowContext(ctx, q, args...).Scan(&id); err != nil {
			return 0, t.wrap(err)
		}
		return id, nil
	}
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, t.wrap(err)
	}
	return res.LastInsertId()
}

// CopyFrom implements storage.Tx.
func (t *Tx) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("copy %s: columns must not be empty", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return 0, fmt.Errorf("copy %s: row %d has %d values, want %d", table, i, len(r), len(columns))
		}
	}
	n, err := t.bulk(ctx, t.tx, table, columns, rows)
	return n, t.wrap(err)
}

// Delete implements storage.Tx.
func (t *Tx) Delete(ctx context.Context, table string, where storage.Predicate) (int64, error) {
	w, args := where.SQL(t.d, 1)
	res, err := t.tx.ExecContext(ctx, "DELETE FROM "+t.d.Quote(table)+w, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Update implements storage.Tx.
func (t *Tx) Update(ctx context.Context, table string, set []string, values []any, where storage.Predicate) (int64, error) {
	if len(set) == 0 || len(set) != len(values) {
		return 0, fmt.Errorf("update %s: %d columns, %d values", table, len(set), len(values))
	}
	parts := make([]string, len(set))
	for i, c := range set {
		parts[i] = fmt.Sprintf("%s = %s", t.d.Quote(c), t.d.Placeholder(i+1))
	}
	w, wargs := where.SQL(t.d, len(set)+1)
	q := "UPDATE " + t.d.Quote(table) + " SET " + strings.Join(parts, ", ") + w
	res, err := t.tx.ExecContext(ctx, q, append(append([]any{}, values...), wargs...)...)
	if err != nil {
		return 0, t.wrap(fmt.Errorf("update %s: %w", table, err))
	}
	return res.RowsAffected()
}

// Select implements storage.Tx.
func (t *Tx) Select(ctx context.Context, table string, columns []string, where storage.Predicate, orderBy []string, limit int) ([][]any, error) {
	q := SelectSQL(t.d, table, columns, where, orderBy, limit)
	_, args := where.SQL(t.d, 1)
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("select %s: scan: %w", table, err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// LimitStyle is implemented by dialects that do not accept LIMIT n.
type LimitStyle interface {
	Limit(query string, n int) string
}

// SelectSQL renders a SELECT statement for d.
func SelectSQL(d storage.Dialect, table string, columns []string, where storage.Predicate, orderBy []string, limit int) string {
	w, _ := where.SQL(d, 1)
	q := "SELECT " + strings.Join(storage.QuoteAll(d, columns), ", ") + " FROM " + d.Quote(table) + w
	if len(orderBy) > 0 {
		q += " ORDER BY " + strings.Join(storage.QuoteAll(d, orderBy), ", ")
	}
	if limit > 0 {
		if ls, ok := d.(LimitStyle); ok {
			return ls.Limit(q, limit)
		}
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	return q
}

// Savepoint implements storage.Tx.
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, t.d.Savepoint(name))
	return err
}

// RollbackTo implements storage.Tx.
func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.tx.ExecContext(ctx, t.d.RollbackTo(name))
	return err
}

// Commit implements storage.Tx.
func (t *Tx) Commit(context.Context) error { return t.tx.Commit() }

// Rollback implements storage.Tx.
func (t *Tx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// MultiRowInsert returns a BulkFn issuing INSERT ... VALUES (...), (...)
// statements with at most maxParams bind parameters each.
func MultiRowInsert(d Dialect, maxParams int) BulkFn {
	return func(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
		per := maxParams / len(columns)
		if per < 1 {
			per = 1
		}
		head := "INSERT INTO " + d.Quote(table) + " (" + strings.Join(storage.QuoteAll(d, columns), ", ") + ") VALUES "

		var total int64
		for start := 0; start < len(rows); start += per {
			end := min(start+per, len(rows))
			chunk := rows[start:end]
			groups := make([]string, len(chunk))
			args := make([]any, 0, len(chunk)*len(columns))
			for i, r := range chunk {
				groups[i] = "(" + storage.Placeholders(d, len(args)+1, len(columns)) + ")"
				args = append(args, r...)
			}
			res, err := tx.ExecContext(ctx, head+strings.Join(groups, ", "), args...)
			if err != nil {
				return total, err
			}
			n, err := res.RowsAffected()
			if err != nil {
				n = int64(len(chunk))
			}
			total += n
		}
		return total, nil
	}
}

// OnConflict renders the INSERT ... ON CONFLICT DO UPDATE form shared by
// Postgres and SQLite. Columns outside conflict are overwritten; when every
// column is part of conflict the first one is assigned to itself so that
// RETURNING still yields the existing row.
func OnConflict(d storage.Dialect, table string, columns, conflict []string, returning string) string {
	in := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		in[c] = true
	}
	var set []string
	for _, c := range columns {
		if !in[c] {
			set = append(set, fmt.Sprintf("%s = excluded.%s", d.Quote(c), d.Quote(c)))
		}
	}
	if len(set) == 0 {
		set = []string{fmt.Sprintf("%s = excluded.%s", d.Quote(conflict[0]), d.Quote(conflict[0]))}
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		d.Quote(table),
		strings.Join(storage.QuoteAll(d, columns), ", "),
		storage.Placeholders(d, 1, len(columns)),
		strings.Join(storage.QuoteAll(d, conflict), ", "),
		strings.Join(set, ", "),
	)
	if returning != "" {
		q += " RETURNING " + d.Quote(returning)
	}
	return q
}
