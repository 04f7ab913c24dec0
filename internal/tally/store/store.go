package store

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement it and expose one repository per entity. Repositories
// obtained from a Tx run inside that transaction; a Tx cannot start another.
//
// Errors are the domain sentinels: domain.ErrNotFound for a missing row,
// domain.ErrAlreadyExists for a unique violation, domain.ErrReferentialIntegrity
// for a foreign key violation and domain.ErrValidation for a check violation or
// a bad query.
type Store interface {
	Users() Users
	Organizations() Organizations
	Invitations() Invitations
	Subscriptions() Subscriptions
	Budgets() Budgets
	BudgetCategories() BudgetCategories
	Expenses() Expenses
	Timesheets() Timesheets
	TimesheetEntries() TimesheetEntries
	Projects() Projects
	Notifications() Notifications
	AuditLogs() AuditLogs

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Reader is the lookup half of a repository.
type Reader[T any] interface {
	// Get returns the row with the given ID (findUnique).
	Get(ctx context.Context, id string) (T, error)

	// First returns the first row matching q, or domain.ErrNotFound.
	First(ctx context.Context, q Query) (T, error)

	// List returns every row matching q (findMany).
	List(ctx context.Context, q Query) ([]T, error)

	Count(ctx context.Context, where Predicate) (int64, error)
}

// Aggregator computes roll-ups.
type Aggregator interface {
	Aggregate(ctx context.Context, where Predicate, a Aggregation) (AggregateResult, error)

	// GroupBy aggregates per distinct combination of the by fields, ordered by
	// those fields.
	GroupBy(ctx context.Context, by []string, where Predicate, a Aggregation) ([]Group, error)
}

// Writer is the mutation half of a repository.
type Writer[T any] interface {
	// Create inserts v. An empty ID is assigned; CreatedAt and UpdatedAt are
	// set by the store.
	Create(ctx context.Context, v *T) error

	// CreateMany inserts every row in one statement, assigning IDs and
	// timestamps in place.
	CreateMany(ctx context.Context, vs []T) (int64, error)

	// Update rewrites every mutable column of the row with v's ID and bumps
	// UpdatedAt.
	Update(ctx context.Context, v *T) error

	UpdateMany(ctx context.Context, where Predicate, set Set) (int64, error)

	// Delete removes the row, or returns domain.ErrNotFound.
	Delete(ctx context.Context, id string) error

	DeleteMany(ctx context.Context, where Predicate) (int64, error)
}

// Collection is the full CRUD surface of an entity.
type Collection[T any] interface {
	Reader[T]
	Writer[T]
	Aggregator
}

type Users interface {
	Collection[domain.User]

	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByResetTokenHash(ctx context.Context, hash string) (domain.User, error)

	// Upsert inserts u or, when the email is taken, updates that row with u's
	// mutable fields. u receives the stored ID and timestamps.
	Upsert(ctx context.Context, u *domain.User) error
}

type Organizations interface {
	Collection[domain.Organization]

	GetByOwner(ctx context.Context, ownerID string) (domain.Organization, error)
}

// Invitations exposes no generic update so the status can only move through
// Accept and ExpirePending.
type Invitations interface {
	Reader[domain.Invitation]
	Aggregator

	Create(ctx context.Context, inv *domain.Invitation) error
	GetByTokenHash(ctx context.Context, hash string) (domain.Invitation, error)

	// Accept moves a PENDING invitation that has not expired at `at` to
	// ACCEPTED. It returns domain.ErrConflict when the row is in any other
	// state and domain.ErrNotFound when it does not exist.
	Accept(ctx context.Context, id, userID string, at time.Time) error

	// ExpirePending rewrites every PENDING invitation past its expiry.
	ExpirePending(ctx context.Context, at time.Time) (int64, error)

	Delete(ctx context.Context, id string) error
}

type Subscriptions interface {
	Collection[domain.Subscription]

	GetByOrganization(ctx context.Context, organizationID string) (domain.Subscription, error)

	// Upsert inserts s or updates the organization's existing subscription.
	Upsert(ctx context.Context, s *domain.Subscription) error
}

type Budgets interface {
	Collection[domain.Budget]

	// Touch bumps updated_at. Inside a transaction it takes the row's write
	// lock, serialising allocation changes to the same budget.
	Touch(ctx context.Context, id string) error
}

type BudgetCategories interface {
	Collection[domain.BudgetCategory]
}

type Expenses interface {
	Collection[domain.Expense]
}

type Timesheets interface {
	Collection[domain.Timesheet]
}

type TimesheetEntries interface {
	Collection[domain.TimesheetEntry]

	// Touch locks the entry like Budgets.Touch, serialising billing.
	Touch(ctx context.Context, id string) error
}

type Projects interface {
	Collection[domain.Project]
}

// Notifications are append-only apart from the read flag.
type Notifications interface {
	Reader[domain.Notification]
	Aggregator

	Create(ctx context.Context, n *domain.Notification) error
	CreateMany(ctx context.Context, ns []domain.Notification) (int64, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// AuditLogs are append-only.
type AuditLogs interface {
	Reader[domain.AuditLog]
	Aggregator

	Create(ctx context.Context, l *domain.AuditLog) error
}
