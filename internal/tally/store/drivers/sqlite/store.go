// Package sqlite is the embedded store driver built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/aussiebroadwan/tally/internal/tally/store/drivers/sqldb"
	_ "modernc.org/sqlite"
)

// Parameters appended to every DSN. Times are written in the sqlite text
// format so they compare correctly inside the engine, and writers take the
// database lock when the transaction begins instead of on first write.
var pragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_time_format=sqlite",
	"_txlock=immediate",
}

// Dialect is the sqlite flavour of the shared SQL engine.
var Dialect = sqldb.Dialect{
	Name:        "sqlite",
	Placeholder: sq.Question,
	MapError:    mapError,
	GlobMatch:   true,
	Migrate:     migrateUp,
}

type Store struct {
	*sqldb.Store
	dsn string
}

// NewStore opens the database at dsn. A path, a file: URI and ":memory:" are
// all accepted; an in-memory database is pinned to a single connection so
// every caller sees the same data.
func NewStore(dsn string, opts ...sqldb.Option) (*Store, error) {
	full := withPragmas(dsn)

	db, err := sql.Open("sqlite", full)
	if err != nil {
		return nil, err
	}
	if isMemory(dsn) {
		db.SetMaxOpenConns(1)
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{Store: sqldb.New(db, Dialect, opts...), dsn: dsn}, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(pragmas, "&")
}

func isMemory(dsn string) bool {
	return dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}
