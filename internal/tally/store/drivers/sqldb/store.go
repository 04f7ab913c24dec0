package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
)

type Store struct {
	repos
	db *sql.DB
}

// Option configures a Store.
type Option func(*engine)

// WithClock replaces the clock used for createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *engine) { e.now = now }
}

// New wraps an open database. The caller keeps ownership of nothing: Close
// closes db.
func New(db *sql.DB, d Dialect, opts ...Option) *Store {
	e := &engine{db: db, d: d, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return &Store{repos: repos{e: e}, db: db}
}

// DB exposes the underlying handle for drivers and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ApplyMigrations() error {
	if s.e.d.Migrate == nil {
		return nil
	}
	return s.e.d.Migrate(s.db)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.e.mapError(err)
	}
	return &txStore{repos: repos{e: s.e.with(tx)}, tx: tx}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	// Ensure rollback is called if we panic or return early with error
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return s.e.mapError(tx.Commit())
}

// repos hands out repositories bound to one engine.
type repos struct {
	e *engine
}

func (r repos) Users() store.Users {
	return &usersRepo{collection[domain.User]{t: userTable, e: r.e}}
}

func (r repos) Organizations() store.Organizations {
	return &organizationsRepo{collection[domain.Organization]{t: organizationTable, e: r.e}}
}

func (r repos) Invitations() store.Invitations {
	return &invitationsRepo{collection[domain.Invitation]{t: invitationTable, e: r.e}}
}

func (r repos) Subscriptions() store.Subscriptions {
	return &subscriptionsRepo{collection[domain.Subscription]{t: subscriptionTable, e: r.e}}
}

func (r repos) Budgets() store.Budgets {
	return &budgetsRepo{collection[domain.Budget]{t: budgetTable, e: r.e}}
}

func (r repos) BudgetCategories() store.BudgetCategories {
	return collection[domain.BudgetCategory]{t: categoryTable, e: r.e}
}

func (r repos) Expenses() store.Expenses {
	return collection[domain.Expense]{t: expenseTable, e: r.e}
}

func (r repos) Timesheets() store.Timesheets {
	return collection[domain.Timesheet]{t: timesheetTable, e: r.e}
}

func (r repos) TimesheetEntries() store.TimesheetEntries {
	return &entriesRepo{collection[domain.TimesheetEntry]{t: entryTable, e: r.e}}
}

func (r repos) Projects() store.Projects {
	return collection[domain.Project]{t: projectTable, e: r.e}
}

func (r repos) Notifications() store.Notifications {
	return &notificationsRepo{collection[domain.Notification]{t: notificationTable, e: r.e}}
}

func (r repos) AuditLogs() store.AuditLogs {
	return collection[domain.AuditLog]{t: auditLogTable, e: r.e}
}
