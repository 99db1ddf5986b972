// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories and DDL bootstrappers with the
// storage package.
//
// Importing this package makes the following storage kinds available:
//
//   - "postgres" (bagetl/internal/storage/postgres)
//   - "mssql"    (bagetl/internal/storage/mssql)
//   - "mysql"    (bagetl/internal/storage/mysql)
//   - "sqlite"   (bagetl/internal/storage/sqlite)
//   - "memory"   (bagetl/internal/storage/memory)
//
// Typical usage, from cmd/bagetl:
//
//	import _ "bagetl/internal/storage/all"
//
//	repo, err := storage.New(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DB.DSN})
//	if err != nil {
//	    // handle error
//	}
//	defer repo.Close()
//	if p.Storage.DB.AutoCreateTable {
//	    err = storage.EnsureTables(ctx, repo, tables)
//	}
//
// A binary that needs only some backends can import those packages directly
// instead of this one.
package all

import (
	_ "bagetl/internal/storage/memory"
	_ "bagetl/internal/storage/mssql"
	_ "bagetl/internal/storage/mysql"
	_ "bagetl/internal/storage/postgres"
	_ "bagetl/internal/storage/sqlite"
)
