package domain

import "time"

// Budget is the top of the allocation hierarchy.
type Budget struct {
	ID        string
	Name      string
	Amount    Money
	StartDate time.Time
	EndDate   *time.Time
	Owner     Owner
	ProjectID *string
	CreatedAt time.Time
	UpdatedAt time.Time

	Categories []BudgetCategory
	Expenses   []Expense
}

// BudgetCategory is a slice of a budget's amount.
type BudgetCategory struct {
	ID              string
	BudgetID        string
	Name            string
	AllocatedAmount Money
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Expenses []Expense
}

// CategorySpend is the spend roll-up of a single category.
type CategorySpend struct {
	CategoryID string
	Name       string
	Allocated  Money
	Spent      Money
	Expenses   int64
}

// Remaining is what is left of the category allocation.
func (c CategorySpend) Remaining() Money { return c.Allocated - c.Spent }

// BudgetSummary is the spend roll-up of a budget.
type BudgetSummary struct {
	BudgetID      string
	Amount        Money
	Allocated     Money
	Unallocated   Money
	Spent         Money
	Uncategorized Money
	Remaining     Money
	Categories    []CategorySpend
}
