package domain

import "time"

// Project is a classification shared by budgets, expenses and timesheets.
type Project struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
