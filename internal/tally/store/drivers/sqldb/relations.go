package sqldb

import (
	"context"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

// Relations and includes point at other tables, so they are linked here
// rather than in the variable initialisers.
func init() {
	userSchema.relations = map[string]relation{
		"organization": {column: "organization_id", target: organizationSchema},
	}
	organizationSchema.relations = map[string]relation{
		"owner": {column: "owner_id", target: userSchema},
	}
	invitationSchema.relations = map[string]relation{
		"organization": {column: "organization_id", target: organizationSchema},
		"user":         {column: "user_id", target: userSchema},
		"invitedBy":    {column: "invited_by_id", target: userSchema},
	}
	subscriptionSchema.relations = map[string]relation{
		"organization": {column: "organization_id", target: organizationSchema},
	}
	budgetSchema.relations = map[string]relation{
		"user":         {column: "user_id", target: userSchema},
		"organization": {column: "organization_id", target: organizationSchema},
		"project":      {column: "project_id", target: projectSchema},
	}
	categorySchema.relations = map[string]relation{
		"budget": {column: "budget_id", target: budgetSchema},
	}
	expenseSchema.relations = map[string]relation{
		"user":           {column: "user_id", target: userSchema},
		"organization":   {column: "organization_id", target: organizationSchema},
		"budget":         {column: "budget_id", target: budgetSchema},
		"category":       {column: "category_id", target: categorySchema},
		"timesheetEntry": {column: "timesheet_entry_id", target: entrySchema},
		"project":        {column: "project_id", target: projectSchema},
	}
	timesheetSchema.relations = map[string]relation{
		"user":         {column: "user_id", target: userSchema},
		"organization": {column: "organization_id", target: organizationSchema},
		"project":      {column: "project_id", target: projectSchema},
	}
	entrySchema.relations = map[string]relation{
		"timesheet": {column: "timesheet_id", target: timesheetSchema},
	}
	notificationSchema.relations = map[string]relation{
		"user": {column: "user_id", target: userSchema},
	}
	auditLogSchema.relations = map[string]relation{
		"user": {column: "user_id", target: userSchema},
	}

	organizationTable.includes = map[string]func(ctx context.Context, e *engine, items []domain.Organization) error{
		"members":      includeMembers,
		"subscription": includeSubscription,
	}
	budgetTable.includes = map[string]func(ctx context.Context, e *engine, items []domain.Budget) error{
		"categories": includeBudgetCategories,
		"expenses":   includeBudgetExpenses,
	}
	categoryTable.includes = map[string]func(ctx context.Context, e *engine, items []domain.BudgetCategory) error{
		"expenses": includeCategoryExpenses,
	}
	timesheetTable.includes = map[string]func(ctx context.Context, e *engine, items []domain.Timesheet) error{
		"entries": includeTimesheetEntries,
	}
	entryTable.includes = map[string]func(ctx context.Context, e *engine, items []domain.TimesheetEntry) error{
		"expenses": includeEntryExpenses,
	}
}
