// Package sqlite implements a SQLite-backed storage.Repository on the pure
// Go modernc.org/sqlite driver.
package sqlite

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a database file path or a modernc connection string, e.g.
	//   "bagetl.db"
	//   "file:bagetl.db?_pragma=busy_timeout(5000)"
	DSN string
}
