package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/cache"
	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/metrics"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/internal/tally/tenancy"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// ExpenseService records spend. An expense's category belongs to its budget,
// and every row it references belongs to the expense's owner.
type ExpenseService struct {
	Store   store.Store
	Clock   Clock
	Cache   cache.Summaries
	Metrics *metrics.Metrics
}

// prepare fills defaults and checks x's references through the scoped store.
// It performs no writes.
func (s *ExpenseService) prepare(ctx context.Context, tx store.Store, ts *tenancy.Store, x *domain.Expense) error {
	if x.Owner.IsZero() {
		x.Owner = ts.Scope().Owner
	}
	if x.Date.IsZero() {
		x.Date = s.Clock.now()
	}
	if x.Amount.IsNegative() {
		return domain.NewValidationError("amount", "must not be negative")
	}
	if err := x.Owner.Validate(); err != nil {
		return err
	}

	// The category decides the budget when only the category is given.
	if x.CategoryID != nil {
		c, err := ts.BudgetCategories().Get(ctx, *x.CategoryID)
		if err != nil {
			return reference("category", *x.CategoryID, err)
		}
		switch {
		case x.BudgetID == nil:
			budgetID := c.BudgetID
			x.BudgetID = &budgetID
		case *x.BudgetID != c.BudgetID:
			return domain.NewValidationError("categoryId", "belongs to a different budget than budgetId")
		}
	}

	if x.BudgetID != nil {
		b, err := ts.Budgets().Get(ctx, *x.BudgetID)
		if err != nil {
			return reference("budget", *x.BudgetID, err)
		}
		if b.Owner != x.Owner {
			return tenancyMismatch("budget", b.ID)
		}
	}

	if x.TimesheetEntryID != nil {
		e, err := ts.TimesheetEntries().Get(ctx, *x.TimesheetEntryID)
		if err != nil {
			return reference("timesheet entry", *x.TimesheetEntryID, err)
		}
		sheet, err := ts.Timesheets().Get(ctx, e.TimesheetID)
		if err != nil {
			return err
		}
		if sheet.Owner != x.Owner {
			return tenancyMismatch("timesheet entry", e.ID)
		}
	}

	return checkProject(ctx, tx, x.ProjectID)
}

func budgetOf(x domain.Expense) string {
	if x.BudgetID == nil {
		return ""
	}
	return *x.BudgetID
}

// Create records an expense for the scope.
func (s *ExpenseService) Create(ctx context.Context, scope domain.Scope, x *domain.Expense) (err error) {
	defer observe(s.Metrics, "expense.create", time.Now(), &err)

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ts := tenancy.Wrap(tx, scope)
		if err := s.prepare(ctx, tx, ts, x); err != nil {
			return err
		}
		return ts.Expenses().Create(ctx, x)
	})
	if err != nil {
		logFailure(ctx, "failed to create expense", err, slog.String("scope", scope.Owner.String()))
		return err
	}

	invalidate(ctx, s.Cache, budgetOf(*x))
	slogx.FromContext(ctx).Debug("expense created",
		slog.String("expense_id", x.ID),
		slog.String("amount", x.Amount.String()),
	)
	return nil
}

// CreateMany records every expense or none of them.
func (s *ExpenseService) CreateMany(ctx context.Context, scope domain.Scope, xs []domain.Expense) (n int64, err error) {
	defer observe(s.Metrics, "expense.create_many", time.Now(), &err)

	if len(xs) == 0 {
		return 0, nil
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ts := tenancy.Wrap(tx, scope)
		for i := range xs {
			if err := s.prepare(ctx, tx, ts, &xs[i]); err != nil {
				var v *domain.ValidationError
				if errors.As(err, &v) {
					for j := range v.Errors {
						v.Errors[j].Field = indexed(i, v.Errors[j].Field)
					}
				}
				return err
			}
		}
		n, err = ts.Expenses().CreateMany(ctx, xs)
		return err
	})
	if err != nil {
		logFailure(ctx, "failed to create expenses", err, slog.Int("count", len(xs)))
		return 0, err
	}

	budgets := make([]string, 0, len(xs))
	for _, x := range xs {
		budgets = append(budgets, budgetOf(x))
	}
	invalidate(ctx, s.Cache, budgets...)
	return n, nil
}

func (s *ExpenseService) Get(ctx context.Context, scope domain.Scope, id string) (domain.Expense, error) {
	return tenancy.Wrap(s.Store, scope).Expenses().Get(ctx, id)
}

func (s *ExpenseService) List(ctx context.Context, scope domain.Scope, q store.Query) ([]domain.Expense, error) {
	return tenancy.Wrap(s.Store, scope).Expenses().List(ctx, q)
}

// Update rewrites an expense after re-checking its references.
func (s *ExpenseService) Update(ctx context.Context, scope domain.Scope, x *domain.Expense) (err error) {
	defer observe(s.Metrics, "expense.update", time.Now(), &err)

	var previous string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ts := tenancy.Wrap(tx, scope)
		current, err := ts.Expenses().Get(ctx, x.ID)
		if err != nil {
			return err
		}
		previous = budgetOf(current)
		x.Owner = current.Owner

		if err := s.prepare(ctx, tx, ts, x); err != nil {
			return err
		}
		return ts.Expenses().Update(ctx, x)
	})
	if err != nil {
		logFailure(ctx, "failed to update expense", err, slog.String("expense_id", x.ID))
		return err
	}

	invalidate(ctx, s.Cache, previous, budgetOf(*x))
	return nil
}

func (s *ExpenseService) Delete(ctx context.Context, scope domain.Scope, id string) (err error) {
	defer observe(s.Metrics, "expense.delete", time.Now(), &err)

	expenses := tenancy.Wrap(s.Store, scope).Expenses()
	x, err := expenses.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := expenses.Delete(ctx, id); err != nil {
		logFailure(ctx, "failed to delete expense", err, slog.String("expense_id", id))
		return err
	}

	invalidate(ctx, s.Cache, budgetOf(x))
	return nil
}

// Total sums the scope's expenses matching where.
func (s *ExpenseService) Total(ctx context.Context, scope domain.Scope, where store.Predicate) (domain.Money, int64, error) {
	res, err := tenancy.Wrap(s.Store, scope).Expenses().Aggregate(ctx, where, store.Aggregation{Sum: []string{"amount"}})
	if err != nil {
		return 0, 0, err
	}
	return domain.Money(res.Sum["amount"]), res.Count, nil
}
