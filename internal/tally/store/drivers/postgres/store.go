// Package postgres is the server store driver built on pgx through its
// database/sql adapter.
package postgres

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aussiebroadwan/tally/internal/tally/store/drivers/sqldb"
)

// Dialect is the postgres flavour of the shared SQL engine. LIKE is already
// case-sensitive, so no GLOB rewrite is needed.
var Dialect = sqldb.Dialect{
	Name:        "postgres",
	Placeholder: sq.Dollar,
	MapError:    mapError,
	Migrate:     migrateUp,
}

type Store struct {
	*sqldb.Store
}

// NewStore connects to dsn (a postgres:// URL or key=value string) and
// verifies the connection.
func NewStore(ctx context.Context, dsn string, opts ...sqldb.Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{Store: sqldb.New(db, Dialect, opts...)}, nil
}
