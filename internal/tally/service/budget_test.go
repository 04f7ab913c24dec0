package service_test

import (
	"context"

	"github.com/aussiebroadwan/tally/internal/tally/cache"
	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/service"
	"github.com/aussiebroadwan/tally/internal/tally/store"
)

const summaryKeyPrefix = "tally:budget:"

// allocatedWithin asserts the allocation invariant for a budget.
func (s *ServiceSuite) allocatedWithin(scope domain.Scope, budgetID string) {
	b, err := s.budgets.Get(s.ctx, scope, budgetID)
	s.Require().NoError(err)
	cats, err := s.budgets.ListCategories(s.ctx, scope, budgetID)
	s.Require().NoError(err)

	var total domain.Money
	for _, c := range cats {
		total += c.AllocatedAmount
	}
	s.LessOrEqual(int64(total), int64(b.Amount))
}

func (s *ServiceSuite) TestCategoryAllocationCannotExceedBudget() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	b := s.budget(scope, 1000)

	s.category(scope, b.ID, "rent", 600)

	second := domain.BudgetCategory{BudgetID: b.ID, Name: "food", AllocatedAmount: 500}
	err := s.budgets.CreateCategory(s.ctx, scope, &second)
	s.ErrorIs(err, domain.ErrValidation)
	var v *domain.ValidationError
	s.Require().ErrorAs(err, &v)
	s.Equal("allocatedAmount", v.Errors[0].Field)
	s.Empty(second.ID)

	cats, err := s.budgets.ListCategories(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Len(cats, 1)

	// Exactly filling the budget is allowed.
	s.category(scope, b.ID, "food", 400)
	s.allocatedWithin(scope, b.ID)
}

func (s *ServiceSuite) TestAllocationHoldsAcrossUpdates() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	b := s.budget(scope, 1000)
	rent := s.category(scope, b.ID, "rent", 600)
	food := s.category(scope, b.ID, "food", 300)

	rent.AllocatedAmount = 800
	s.ErrorIs(s.budgets.UpdateCategory(s.ctx, scope, &rent), domain.ErrValidation)
	s.allocatedWithin(scope, b.ID)

	rent.AllocatedAmount = 700
	s.Require().NoError(s.budgets.UpdateCategory(s.ctx, scope, &rent))
	s.allocatedWithin(scope, b.ID)

	// Re-saving a category at its own allocation does not count it twice.
	s.Require().NoError(s.budgets.UpdateCategory(s.ctx, scope, &food))

	b.Amount = 999
	s.ErrorIs(s.budgets.Update(s.ctx, scope, &b), domain.ErrValidation)

	b.Amount = 1000
	b.Name = "renamed"
	s.Require().NoError(s.budgets.Update(s.ctx, scope, &b))
	got, err := s.budgets.Get(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Equal("renamed", got.Name)

	moved := food
	moved.BudgetID = s.budget(scope, 5000).ID
	s.ErrorIs(s.budgets.UpdateCategory(s.ctx, scope, &moved), domain.ErrValidation)

	s.Require().NoError(s.budgets.DeleteCategory(s.ctx, scope, rent.ID))
	b.Amount = 300
	s.Require().NoError(s.budgets.Update(s.ctx, scope, &b))
	s.allocatedWithin(scope, b.ID)
}

func (s *ServiceSuite) TestBudgetValidation() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)

	b := domain.Budget{Amount: -1, EndDate: ptr(epoch)}
	err := s.budgets.Create(s.ctx, scope, &b)
	var v *domain.ValidationError
	s.Require().ErrorAs(err, &v)
	s.Len(v.Errors, 3)

	b = domain.Budget{Name: "p", Amount: 1, StartDate: epoch, ProjectID: ptr("missing")}
	s.ErrorIs(s.budgets.Create(s.ctx, scope, &b), domain.ErrReferentialIntegrity)

	n, err := s.store.Budgets().Count(s.ctx, nil)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ServiceSuite) TestBudgetsAreTenantScoped() {
	alice := s.register("alice@x.com")
	bob := s.register("bob@x.com")
	as, bs := s.scopeOf(alice.ID), s.scopeOf(bob.ID)

	theirs := s.budget(bs, 1000)
	mine := s.budget(as, 1000)

	_, err := s.budgets.Get(s.ctx, as, theirs.ID)
	s.ErrorIs(err, domain.ErrCrossTenant)

	c := domain.BudgetCategory{BudgetID: theirs.ID, Name: "x", AllocatedAmount: 1}
	s.ErrorIs(s.budgets.CreateCategory(s.ctx, as, &c), domain.ErrCrossTenant)

	c = domain.BudgetCategory{BudgetID: "missing", Name: "x", AllocatedAmount: 1}
	s.ErrorIs(s.budgets.CreateCategory(s.ctx, as, &c), domain.ErrReferentialIntegrity)

	_, err = s.budgets.Summary(s.ctx, as, theirs.ID)
	s.ErrorIs(err, domain.ErrCrossTenant)
	s.ErrorIs(s.budgets.Delete(s.ctx, as, theirs.ID), domain.ErrCrossTenant)

	list, err := s.budgets.List(s.ctx, as, store.Query{})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(mine.ID, list[0].ID)

	s.Require().NoError(s.budgets.Delete(s.ctx, as, mine.ID))
	_, err = s.budgets.Get(s.ctx, as, mine.ID)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *ServiceSuite) TestSummaryRollsUpSpend() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	b := s.budget(scope, 100_00)
	rent := s.category(scope, b.ID, "rent", 60_00)
	food := s.category(scope, b.ID, "food", 30_00)

	for _, x := range []domain.Expense{
		{Amount: 50_00, CategoryID: &rent.ID},
		{Amount: 12_50, CategoryID: &food.ID},
		{Amount: 2_50, CategoryID: &food.ID},
		{Amount: 5_00, BudgetID: &b.ID},
	} {
		s.Require().NoError(s.expenses.Create(s.ctx, scope, &x))
	}

	sum, err := s.budgets.Summary(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Equal(domain.Money(100_00), sum.Amount)
	s.Equal(domain.Money(90_00), sum.Allocated)
	s.Equal(domain.Money(10_00), sum.Unallocated)
	s.Equal(domain.Money(70_00), sum.Spent)
	s.Equal(domain.Money(5_00), sum.Uncategorized)
	s.Equal(domain.Money(30_00), sum.Remaining)
	s.Require().Len(sum.Categories, 2)

	// Categories are ordered by name.
	s.Equal("food", sum.Categories[0].Name)
	s.Equal(domain.Money(15_00), sum.Categories[0].Spent)
	s.EqualValues(2, sum.Categories[0].Expenses)
	s.Equal(domain.Money(15_00), sum.Categories[0].Remaining())
	s.Equal("rent", sum.Categories[1].Name)
	s.Equal(domain.Money(50_00), sum.Categories[1].Spent)

	// The summary is cached until the next expense write.
	s.True(s.redis.Exists(summaryKeyPrefix + b.ID + ":summary"))
	again, err := s.budgets.Summary(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Equal(sum, again)

	x := domain.Expense{Amount: 1_00, CategoryID: &rent.ID}
	s.Require().NoError(s.expenses.Create(s.ctx, scope, &x))
	s.False(s.redis.Exists(summaryKeyPrefix + b.ID + ":summary"))

	sum, err = s.budgets.Summary(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Equal(domain.Money(71_00), sum.Spent)
}

// writeBeforeSet runs write once, just before the summary is stored.
type writeBeforeSet struct {
	cache.Summaries
	write func()
}

func (c *writeBeforeSet) Set(ctx context.Context, sum domain.BudgetSummary, version int64) error {
	if c.write != nil {
		c.write()
		c.write = nil
	}
	return c.Summaries.Set(ctx, sum, version)
}

func (s *ServiceSuite) TestSummaryComputedAcrossAWriteIsNotCached() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	b := s.budget(scope, 100_00)
	first := domain.Expense{Amount: 10_00, BudgetID: &b.ID}
	s.Require().NoError(s.expenses.Create(s.ctx, scope, &first))

	racing := &writeBeforeSet{Summaries: s.cache, write: func() {
		x := domain.Expense{Amount: 5_00, BudgetID: &b.ID}
		s.Require().NoError(s.expenses.Create(s.ctx, scope, &x))
	}}
	budgets := &service.BudgetService{Store: s.store, Cache: racing, Metrics: s.metrics}

	sum, err := budgets.Summary(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Equal(domain.Money(10_00), sum.Spent)
	s.False(s.redis.Exists(summaryKeyPrefix + b.ID + ":summary"))

	sum, err = budgets.Summary(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Equal(domain.Money(15_00), sum.Spent)
	s.True(s.redis.Exists(summaryKeyPrefix + b.ID + ":summary"))
}

func (s *ServiceSuite) TestDeleteCategoryKeepsExpenses() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	b := s.budget(scope, 100)
	c := s.category(scope, b.ID, "misc", 100)

	x := domain.Expense{Amount: 40, CategoryID: &c.ID}
	s.Require().NoError(s.expenses.Create(s.ctx, scope, &x))
	s.Require().NoError(s.budgets.DeleteCategory(s.ctx, scope, c.ID))

	got, err := s.expenses.Get(s.ctx, scope, x.ID)
	s.Require().NoError(err)
	s.Nil(got.CategoryID)
	s.Require().NotNil(got.BudgetID)
	s.Equal(b.ID, *got.BudgetID)

	detail, err := s.budgets.Detail(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Empty(detail.Categories)
	s.Len(detail.Expenses, 1)
}
