package sqldb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var expenseSchema = &schema{
	table:     "expenses",
	entity:    "expense",
	updatedAt: true,
	fields: withBase(true, map[string]column{
		"amount":           {name: "amount", kind: kindInt},
		"description":      {name: "description"},
		"date":             {name: "date", kind: kindTime},
		"userId":           {name: "user_id", fixed: true},
		"organizationId":   {name: "organization_id", fixed: true},
		"budgetId":         {name: "budget_id", fixed: true},
		"categoryId":       {name: "category_id", fixed: true},
		"timesheetEntryId": {name: "timesheet_entry_id", fixed: true},
		"projectId":        {name: "project_id"},
	}),
}

var expenseTable = &table[domain.Expense]{
	schema: expenseSchema,
	columns: []string{
		"id", "amount", "description", "date", "user_id", "organization_id", "budget_id",
		"category_id", "timesheet_entry_id", "project_id", "created_at", "updated_at",
	},
	scan: scanExpense,
	row: func(x *domain.Expense) (map[string]any, error) {
		m := expenseMutable(x)
		m["id"] = x.ID
		m["user_id"] = mapOptionalString(x.Owner.UserID())
		m["organization_id"] = mapOptionalString(x.Owner.OrganizationID())
		m["created_at"] = x.CreatedAt
		m["updated_at"] = x.UpdatedAt
		return m, nil
	},
	mutable:   expenseMutable,
	id:        func(x *domain.Expense) *string { return &x.ID },
	createdAt: func(x *domain.Expense) *time.Time { return &x.CreatedAt },
	updatedAt: func(x *domain.Expense) *time.Time { return &x.UpdatedAt },
}

func scanExpense(s scanner) (domain.Expense, error) {
	var (
		x          domain.Expense
		amount     int64
		userID     sql.NullString
		orgID      sql.NullString
		budgetID   sql.NullString
		categoryID sql.NullString
		entryID    sql.NullString
		projectID  sql.NullString
	)
	err := s.Scan(&x.ID, &amount, &x.Description, &x.Date, &userID, &orgID, &budgetID,
		&categoryID, &entryID, &projectID, &x.CreatedAt, &x.UpdatedAt)
	if err != nil {
		return domain.Expense{}, err
	}
	owner, err := mapOwner(userID, orgID)
	if err != nil {
		return domain.Expense{}, fmt.Errorf("expense %s: %w", x.ID, err)
	}
	x.Owner = owner
	x.Amount = domain.Money(amount)
	x.BudgetID = mapNullStringPtr(budgetID)
	x.CategoryID = mapNullStringPtr(categoryID)
	x.TimesheetEntryID = mapNullStringPtr(entryID)
	x.ProjectID = mapNullStringPtr(projectID)
	x.Date = utc(x.Date)
	x.CreatedAt, x.UpdatedAt = utc(x.CreatedAt), utc(x.UpdatedAt)
	return x, nil
}

func expenseMutable(x *domain.Expense) map[string]any {
	return map[string]any{
		"amount":             int64(x.Amount),
		"description":        x.Description,
		"date":               utc(x.Date),
		"budget_id":          mapOptionalString(x.BudgetID),
		"category_id":        mapOptionalString(x.CategoryID),
		"timesheet_entry_id": mapOptionalString(x.TimesheetEntryID),
		"project_id":         mapOptionalString(x.ProjectID),
	}
}
