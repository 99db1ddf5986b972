// Package mssql implements a Microsoft SQL Server repository. Bulk loads use
// the go-mssqldb bulk copy API inside the caller's transaction.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"bagetl/internal/etlerr"
	"bagetl/internal/storage"
	"bagetl/internal/storage/sqldb"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN string
}

// Repository is an MSSQL-backed storage.Repository.
type Repository struct {
	*sqldb.Repository
	cfg Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, &etlerr.SinkConnectivityError{Kind: "mssql", Op: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, &etlerr.SinkConnectivityError{Kind: "mssql", Op: "ping", Err: err}
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{Repository: sqldb.New(db, "mssql", dialect{}, bulkCopy, 0), cfg: cfg}, closeFn, nil
}

// bulkCopy streams rows through mssql.CopyIn on tx.
func bulkCopy(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	return res.RowsAffected()
}

type dialect struct{}

func (dialect) Quote(ident string) string { return storage.QuoteWith(ident, "[", "]") }
func (dialect) Placeholder(n int) string  { return "@p" + strconv.Itoa(n) }

// Limit implements sqldb.LimitStyle.
func (dialect) Limit(query string, n int) string {
	return strings.Replace(query, "SELECT ", fmt.Sprintf("SELECT TOP (%d) ", n), 1)
}

func (d dialect) GetOrCreate(table, column string) (string, bool) {
	return d.merge(table, []string{column}, []string{column}), true
}

func (d dialect) Upsert(table string, columns, conflict []string) (string, bool) {
	return d.merge(table, columns, conflict), true
}

// merge renders a single-row MERGE ... WITH (HOLDLOCK) that outputs the id of
// the inserted or matched row.
func (d dialect) merge(table string, columns, conflict []string) string {
	src := make([]string, len(columns))
	for i, c := range columns {
		src[i] = fmt.Sprintf("%s AS %s", d.Placeholder(i+1), d.Quote(c))
	}
	on := make([]string, len(conflict))
	in := make(map[string]bool, len(conflict))
	for i, c := range conflict {
		on[i] = fmt.Sprintf("T.%s = S.%s", d.Quote(c), d.Quote(c))
		in[c] = true
	}
	var set []string
	for _, c := range columns {
		if !in[c] {
			set = append(set, fmt.Sprintf("T.%s = S.%s", d.Quote(c), d.Quote(c)))
		}
	}
	if len(set) == 0 {
		set = []string{fmt.Sprintf("T.%s = S.%s", d.Quote(conflict[0]), d.Quote(conflict[0]))}
	}
	vals := make([]string, len(columns))
	for i, c := range columns {
		vals[i] = "S." + d.Quote(c)
	}
	return fmt.Sprintf(
		"MERGE INTO %s WITH (HOLDLOCK) AS T USING (SELECT %s) AS S ON %s "+
			"WHEN MATCHED THEN UPDATE SET %s "+
			"WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s) "+
			"OUTPUT inserted.[id];",
		d.Quote(table),
		strings.Join(src, ", "),
		strings.Join(on, " AND "),
		strings.Join(set, ", "),
		strings.Join(storage.QuoteAll(d, columns), ", "),
		strings.Join(vals, ", "),
	)
}

func (d dialect) Savepoint(name string) string  { return "SAVE TRANSACTION " + d.Quote(name) }
func (d dialect) RollbackTo(name string) string { return "ROLLBACK TRANSACTION " + d.Quote(name) }

// IsDuplicate matches error 2627 (unique constraint) and 2601 (unique index).
func (dialect) IsDuplicate(err error) bool {
	var n int32
	var e mssql.Error
	var pe *mssql.Error
	switch {
	case errors.As(err, &e):
		n = e.Number
	case errors.As(err, &pe):
		n = pe.Number
	default:
		return false
	}
	return n == 2627 || n == 2601
}
