package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var budgetSchema = &schema{
	table:     "budgets",
	entity:    "budget",
	updatedAt: true,
	fields: withBase(true, map[string]column{
		"name":           {name: "name"},
		"amount":         {name: "amount", kind: kindInt},
		"startDate":      {name: "start_date", kind: kindTime},
		"endDate":        {name: "end_date", kind: kindTime},
		"userId":         {name: "user_id", fixed: true},
		"organizationId": {name: "organization_id", fixed: true},
		"projectId":      {name: "project_id"},
	}),
}

var budgetTable = &table[domain.Budget]{
	schema: budgetSchema,
	columns: []string{
		"id", "name", "amount", "start_date", "end_date", "user_id", "organization_id",
		"project_id", "created_at", "updated_at",
	},
	scan: scanBudget,
	row: func(b *domain.Budget) (map[string]any, error) {
		m := budgetMutable(b)
		m["id"] = b.ID
		m["user_id"] = mapOptionalString(b.Owner.UserID())
		m["organization_id"] = mapOptionalString(b.Owner.OrganizationID())
		m["created_at"] = b.CreatedAt
		m["updated_at"] = b.UpdatedAt
		return m, nil
	},
	mutable:   budgetMutable,
	id:        func(b *domain.Budget) *string { return &b.ID },
	createdAt: func(b *domain.Budget) *time.Time { return &b.CreatedAt },
	updatedAt: func(b *domain.Budget) *time.Time { return &b.UpdatedAt },
}

func scanBudget(s scanner) (domain.Budget, error) {
	var (
		b         domain.Budget
		amount    int64
		endDate   sql.NullTime
		userID    sql.NullString
		orgID     sql.NullString
		projectID sql.NullString
	)
	err := s.Scan(&b.ID, &b.Name, &amount, &b.StartDate, &endDate, &userID, &orgID, &projectID,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return domain.Budget{}, err
	}
	owner, err := mapOwner(userID, orgID)
	if err != nil {
		return domain.Budget{}, fmt.Errorf("budget %s: %w", b.ID, err)
	}
	b.Owner = owner
	b.Amount = domain.Money(amount)
	b.EndDate = mapNullTimePtr(endDate)
	b.ProjectID = mapNullStringPtr(projectID)
	b.StartDate = utc(b.StartDate)
	b.CreatedAt, b.UpdatedAt = utc(b.CreatedAt), utc(b.UpdatedAt)
	return b, nil
}

// budgetMutable leaves the owner out: ownership never changes after create.
func budgetMutable(b *domain.Budget) map[string]any {
	return map[string]any{
		"name":       b.Name,
		"amount":     int64(b.Amount),
		"start_date": utc(b.StartDate),
		"end_date":   mapOptionalTime(b.EndDate),
		"project_id": mapOptionalString(b.ProjectID),
	}
}

func includeBudgetCategories(ctx context.Context, e *engine, budgets []domain.Budget) error {
	children, err := loadChildren(ctx, e, categoryTable, "budgetId", budgetIDs(budgets),
		func(c domain.BudgetCategory) *string { return &c.BudgetID })
	if err != nil {
		return err
	}
	for i := range budgets {
		budgets[i].Categories = children[budgets[i].ID]
	}
	return nil
}

func includeBudgetExpenses(ctx context.Context, e *engine, budgets []domain.Budget) error {
	children, err := loadChildren(ctx, e, expenseTable, "budgetId", budgetIDs(budgets),
		func(x domain.Expense) *string { return x.BudgetID })
	if err != nil {
		return err
	}
	for i := range budgets {
		budgets[i].Expenses = children[budgets[i].ID]
	}
	return nil
}

func budgetIDs(budgets []domain.Budget) []string {
	ids := make([]string, len(budgets))
	for i, b := range budgets {
		ids[i] = b.ID
	}
	return ids
}

type budgetsRepo struct {
	collection[domain.Budget]
}

func (r *budgetsRepo) Touch(ctx context.Context, id string) error {
	return r.t.touch(ctx, r.e, id)
}
