// Package mysql implements a MySQL repository on go-sql-driver/mysql. Bulk
// loads are multi-row INSERT statements.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"bagetl/internal/etlerr"
	"bagetl/internal/storage"
	"bagetl/internal/storage/sqldb"
)

// erDupEntry is the server error number for a duplicate unique key.
const erDupEntry = 1062

// maxParams is the protocol limit on placeholders per prepared statement.
const maxParams = 65535

// Config holds MySQL repository configuration.
type Config struct {
	DSN string
}

// Repository is a MySQL-backed storage.Repository.
type Repository struct {
	*sqldb.Repository
	cfg Config
}

// NewRepository parses cfg.DSN, opens a pool and pings it.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, nil, &etlerr.SinkConnectivityError{Kind: "mysql", Op: "open", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, &etlerr.SinkConnectivityError{Kind: "mysql", Op: "ping", Err: err}
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{Repository: sqldb.New(db, "mysql", dialect{}, nil, maxParams), cfg: cfg}, closeFn, nil
}

type dialect struct{}

func (dialect) Quote(ident string) string { return storage.QuoteWith(ident, "`", "`") }
func (dialect) Placeholder(int) string    { return "?" }

// GetOrCreate uses LAST_INSERT_ID(id) so that the existing id is reported
// through LastInsertId when the key is already present.
func (d dialect) GetOrCreate(table, column string) (string, bool) {
	return d.Upsert(table, []string{column}, []string{column})
}

func (d dialect) Upsert(table string, columns, conflict []string) (string, bool) {
	in := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		in[c] = true
	}
	set := []string{"`id` = LAST_INSERT_ID(`id`)"}
	for _, c := range columns {
		if !in[c] && c != "id" {
			set = append(set, fmt.Sprintf("%s = VALUES(%s)", d.Quote(c), d.Quote(c)))
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		d.Quote(table),
		strings.Join(storage.QuoteAll(d, columns), ", "),
		storage.Placeholders(d, 1, len(columns)),
		strings.Join(set, ", "),
	), false
}

func (d dialect) Savepoint(name string) string  { return "SAVEPOINT " + d.Quote(name) }
func (d dialect) RollbackTo(name string) string { return "ROLLBACK TO SAVEPOINT " + d.Quote(name) }

func (dialect) IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}
