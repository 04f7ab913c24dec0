package tenancy

import (
	"context"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
)

// Store is a tenant-confined view over the financial and time tracking
// repositories of a store or transaction.
type Store struct {
	scope domain.Scope

	touchBudget func(ctx context.Context, id string) error
	touchEntry  func(ctx context.Context, id string) error

	budgets    collection[domain.Budget]
	categories collection[domain.BudgetCategory]
	expenses   collection[domain.Expense]
	timesheets collection[domain.Timesheet]
	entries    collection[domain.TimesheetEntry]
}

// Wrap confines s to scope. Wrapping a store.Tx keeps every call inside that
// transaction.
func Wrap(s store.Store, scope domain.Scope) *Store {
	owned := Filter(scope)
	rawBudgets, rawEntries := s.Budgets(), s.TimesheetEntries()

	budgets := collection[domain.Budget]{
		inner:  rawBudgets,
		filter: owned,
		entity: "budget",
		id:     func(b *domain.Budget) string { return b.ID },
		admit:  ownedBy(scope, "budget", func(b *domain.Budget) domain.Owner { return b.Owner }),
		locked: []string{"amount"},
	}
	timesheets := collection[domain.Timesheet]{
		inner:  s.Timesheets(),
		filter: owned,
		entity: "timesheet",
		id:     func(t *domain.Timesheet) string { return t.ID },
		admit:  ownedBy(scope, "timesheet", func(t *domain.Timesheet) domain.Owner { return t.Owner }),
	}

	categories := collection[domain.BudgetCategory]{
		inner:  s.BudgetCategories(),
		filter: store.Has{Relation: "budget", Where: owned},
		entity: "budget category",
		id:     func(c *domain.BudgetCategory) string { return c.ID },
		admit:  childOf(budgets, func(c *domain.BudgetCategory) string { return c.BudgetID }),
		locked: []string{"budgetId", "allocatedAmount"},
	}
	entries := collection[domain.TimesheetEntry]{
		inner:  rawEntries,
		filter: store.Has{Relation: "timesheet", Where: owned},
		entity: "timesheet entry",
		id:     func(e *domain.TimesheetEntry) string { return e.ID },
		admit:  childOf(timesheets, func(e *domain.TimesheetEntry) string { return e.TimesheetID }),
		locked: []string{"timesheetId", "startTime", "endTime", "duration"},
	}
	expenses := collection[domain.Expense]{
		inner:  s.Expenses(),
		filter: owned,
		entity: "expense",
		id:     func(x *domain.Expense) string { return x.ID },
		locked: []string{"budgetId", "categoryId", "timesheetEntryId"},
	}
	expenses.admit = expenseRefs(
		ownedBy(scope, "expense", func(x *domain.Expense) domain.Owner { return x.Owner }),
		budgets, categories, entries,
	)

	return &Store{
		scope:       scope,
		touchBudget: rawBudgets.Touch,
		touchEntry:  rawEntries.Touch,
		budgets:     budgets,
		categories:  categories,
		expenses:    expenses,
		timesheets:  timesheets,
		entries:     entries,
	}
}

// expenseRefs admits an owned expense whose budget, category and timesheet
// entry are all inside the scope, with the category under the budget.
func expenseRefs(
	owned func(context.Context, *domain.Expense) error,
	budgets collection[domain.Budget],
	categories collection[domain.BudgetCategory],
	entries collection[domain.TimesheetEntry],
) func(context.Context, *domain.Expense) error {
	return func(ctx context.Context, x *domain.Expense) error {
		if err := owned(ctx, x); err != nil {
			return err
		}
		if x.BudgetID != nil {
			if err := budgets.check(ctx, *x.BudgetID); err != nil {
				return err
			}
		}
		if x.CategoryID != nil {
			c, err := categories.Get(ctx, *x.CategoryID)
			if err != nil {
				return err
			}
			if x.BudgetID != nil && c.BudgetID != *x.BudgetID {
				return domain.NewValidationError("categoryId", "belongs to a different budget")
			}
		}
		if x.TimesheetEntryID != nil {
			if err := entries.check(ctx, *x.TimesheetEntryID); err != nil {
				return err
			}
		}
		return nil
	}
}

// Scope returns the tenant the store is confined to.
func (s *Store) Scope() domain.Scope { return s.scope }

func (s *Store) Budgets() store.Budgets {
	return budgets{collection: s.budgets, touch: s.touchBudget}
}

func (s *Store) BudgetCategories() store.BudgetCategories { return s.categories }
func (s *Store) Expenses() store.Expenses                 { return s.expenses }
func (s *Store) Timesheets() store.Timesheets             { return s.timesheets }

func (s *Store) TimesheetEntries() store.TimesheetEntries {
	return entries{collection: s.entries, touch: s.touchEntry}
}

type budgets struct {
	collection[domain.Budget]
	touch func(ctx context.Context, id string) error
}

func (b budgets) Touch(ctx context.Context, id string) error {
	if err := b.check(ctx, id); err != nil {
		return err
	}
	return b.touch(ctx, id)
}

type entries struct {
	collection[domain.TimesheetEntry]
	touch func(ctx context.Context, id string) error
}

func (e entries) Touch(ctx context.Context, id string) error {
	if err := e.check(ctx, id); err != nil {
		return err
	}
	return e.touch(ctx, id)
}
