// Package sqldb implements the store on database/sql. Statements are built
// with squirrel; the engine specifics (placeholders, error codes, pattern
// matching, migrations) come from a Dialect supplied by the sqlite and
// postgres drivers.
package sqldb

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Dialect describes a SQL engine.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat

	// MapError translates driver errors into domain sentinels and returns
	// every other error unchanged.
	MapError func(error) error

	// GlobMatch makes case-sensitive string predicates use GLOB instead of
	// LIKE, for engines whose LIKE ignores case.
	GlobMatch bool

	// Migrate applies the embedded schema.
	Migrate func(db *sql.DB) error
}

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// engine binds a connection or transaction to a dialect and a clock.
type engine struct {
	db  DBTX
	d   Dialect
	now func() time.Time
}

func (e *engine) with(db DBTX) *engine {
	return &engine{db: db, d: e.d, now: e.now}
}

func (e *engine) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(e.d.Placeholder)
}

// timestamp is the store clock in UTC truncated to the precision every
// engine keeps.
func (e *engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

func (e *engine) mapError(err error) error {
	if err == nil || e.d.MapError == nil {
		return err
	}
	return e.d.MapError(err)
}

func (e *engine) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	res, err := e.db.ExecContext(ctx, query, args...)
	return res, e.mapError(err)
}

func (e *engine) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, query, args...)
	return rows, e.mapError(err)
}

func (e *engine) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return e.db.QueryRowContext(ctx, query, args...), nil
}
