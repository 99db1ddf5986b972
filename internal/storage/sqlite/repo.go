package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"bagetl/internal/etlerr"
	"bagetl/internal/storage/sqldb"
)

// maxParams stays below SQLITE_MAX_VARIABLE_NUMBER of the bundled library.
const maxParams = 32000

// Repository is a SQLite-backed storage.Repository.
type Repository struct {
	*sqldb.Repository
	cfg Config
}

// NewRepository opens the database named by cfg.DSN and returns a
// Repository plus a Close function for cleanup.
//
// The pool is limited to one connection: SQLite has a single writer, and a
// ":memory:" database exists per connection.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, &etlerr.SinkConnectivityError{Kind: "sqlite", Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, &etlerr.SinkConnectivityError{Kind: "sqlite", Op: "ping", Err: err}
	}

	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;")

	closeFn := func() { db.Close() }
	return &Repository{Repository: sqldb.New(db, "sqlite", dialect{}, nil, maxParams), cfg: cfg}, closeFn, nil
}
