package domain

import "time"

// Expense is a single spend. Every attachment is optional.
type Expense struct {
	ID               string
	Amount           Money
	Description      string
	Date             time.Time
	Owner            Owner
	BudgetID         *string
	CategoryID       *string
	TimesheetEntryID *string
	ProjectID        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
