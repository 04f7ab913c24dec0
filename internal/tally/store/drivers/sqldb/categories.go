package sqldb

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

var categorySchema = &schema{
	table:     "budget_categories",
	entity:    "budget category",
	updatedAt: true,
	fields: withBase(true, map[string]column{
		"budgetId":        {name: "budget_id", fixed: true},
		"name":            {name: "name"},
		"allocatedAmount": {name: "allocated_amount", kind: kindInt},
	}),
}

var categoryTable = &table[domain.BudgetCategory]{
	schema:  categorySchema,
	columns: []string{"id", "budget_id", "name", "allocated_amount", "created_at", "updated_at"},
	scan:    scanCategory,
	row: func(c *domain.BudgetCategory) (map[string]any, error) {
		m := categoryMutable(c)
		m["id"] = c.ID
		m["budget_id"] = c.BudgetID
		m["created_at"] = c.CreatedAt
		m["updated_at"] = c.UpdatedAt
		return m, nil
	},
	mutable:   categoryMutable,
	id:        func(c *domain.BudgetCategory) *string { return &c.ID },
	createdAt: func(c *domain.BudgetCategory) *time.Time { return &c.CreatedAt },
	updatedAt: func(c *domain.BudgetCategory) *time.Time { return &c.UpdatedAt },
}

func scanCategory(s scanner) (domain.BudgetCategory, error) {
	var (
		c         domain.BudgetCategory
		allocated int64
	)
	if err := s.Scan(&c.ID, &c.BudgetID, &c.Name, &allocated, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.BudgetCategory{}, err
	}
	c.AllocatedAmount = domain.Money(allocated)
	c.CreatedAt, c.UpdatedAt = utc(c.CreatedAt), utc(c.UpdatedAt)
	return c, nil
}

func categoryMutable(c *domain.BudgetCategory) map[string]any {
	return map[string]any{
		"name":             c.Name,
		"allocated_amount": int64(c.AllocatedAmount),
	}
}

func includeCategoryExpenses(ctx context.Context, e *engine, cats []domain.BudgetCategory) error {
	ids := make([]string, len(cats))
	for i, c := range cats {
		ids[i] = c.ID
	}
	children, err := loadChildren(ctx, e, expenseTable, "categoryId", ids,
		func(x domain.Expense) *string { return x.CategoryID })
	if err != nil {
		return err
	}
	for i := range cats {
		cats[i].Expenses = children[cats[i].ID]
	}
	return nil
}
