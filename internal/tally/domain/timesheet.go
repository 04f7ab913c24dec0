package domain

import "time"

// Conventional timesheet status values. The column is free-form.
const (
	TimesheetDraft     = "draft"
	TimesheetSubmitted = "submitted"
	TimesheetApproved  = "approved"
)

// Timesheet groups entries for a period.
type Timesheet struct {
	ID        string
	Status    string
	StartDate time.Time
	EndDate   time.Time
	Owner     Owner
	ProjectID *string
	CreatedAt time.Time
	UpdatedAt time.Time

	Entries []TimesheetEntry
}

// TimesheetEntry is a block of tracked time.
type TimesheetEntry struct {
	ID          string
	TimesheetID string
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Expenses []Expense
}
