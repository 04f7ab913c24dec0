package service_test

import (
	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
)

func (s *ServiceSuite) TestExpenseCategoryMustBelongToBudget() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	a := s.budget(scope, 1000)
	b := s.budget(scope, 1000)
	catA := s.category(scope, a.ID, "a", 100)

	x := domain.Expense{Amount: 10, CategoryID: &catA.ID, BudgetID: &b.ID}
	err := s.expenses.Create(s.ctx, scope, &x)
	s.ErrorIs(err, domain.ErrValidation)
	var v *domain.ValidationError
	s.Require().ErrorAs(err, &v)
	s.Equal("categoryId", v.Errors[0].Field)

	n, err := s.store.Expenses().Count(s.ctx, nil)
	s.Require().NoError(err)
	s.Zero(n)

	// With only a category, the budget comes from the category.
	x = domain.Expense{Amount: 10, CategoryID: &catA.ID}
	s.Require().NoError(s.expenses.Create(s.ctx, scope, &x))
	s.Require().NotNil(x.BudgetID)
	s.Equal(a.ID, *x.BudgetID)
	s.Equal(domain.Personal(u.ID), x.Owner)
	s.Equal(epoch, x.Date)
}

func (s *ServiceSuite) TestExpenseReferences() {
	alice := s.register("alice@x.com")
	bob := s.register("bob@x.com")
	as, bs := s.scopeOf(alice.ID), s.scopeOf(bob.ID)
	theirs := s.budget(bs, 1000)
	theirCat := s.category(bs, theirs.ID, "x", 10)

	cases := []struct {
		name string
		x    domain.Expense
		want error
	}{
		{"foreign budget", domain.Expense{Amount: 1, BudgetID: &theirs.ID}, domain.ErrCrossTenant},
		{"foreign category", domain.Expense{Amount: 1, CategoryID: &theirCat.ID}, domain.ErrCrossTenant},
		{"missing budget", domain.Expense{Amount: 1, BudgetID: ptr("missing")}, domain.ErrReferentialIntegrity},
		{"missing category", domain.Expense{Amount: 1, CategoryID: ptr("missing")}, domain.ErrReferentialIntegrity},
		{"missing entry", domain.Expense{Amount: 1, TimesheetEntryID: ptr("missing")}, domain.ErrReferentialIntegrity},
		{"missing project", domain.Expense{Amount: 1, ProjectID: ptr("missing")}, domain.ErrReferentialIntegrity},
		{"foreign owner", domain.Expense{Amount: 1, Owner: bs.Owner}, domain.ErrCrossTenant},
		{"negative amount", domain.Expense{Amount: -1}, domain.ErrValidation},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			x := tc.x
			s.ErrorIs(s.expenses.Create(s.ctx, as, &x), tc.want)
		})
	}

	p := domain.Project{Name: "apollo"}
	s.Require().NoError(s.projects.Create(s.ctx, &p))
	x := domain.Expense{Amount: 1, ProjectID: &p.ID}
	s.Require().NoError(s.expenses.Create(s.ctx, as, &x))
}

func (s *ServiceSuite) TestCreateManyIsAllOrNothing() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	a := s.budget(scope, 1000)
	b := s.budget(scope, 1000)
	catA := s.category(scope, a.ID, "a", 100)

	_, err := s.expenses.CreateMany(s.ctx, scope, []domain.Expense{
		{Amount: 1, BudgetID: &a.ID},
		{Amount: 2, CategoryID: &catA.ID, BudgetID: &b.ID},
	})
	var v *domain.ValidationError
	s.Require().ErrorAs(err, &v)
	s.Equal("[1].categoryId", v.Errors[0].Field)

	n, err := s.store.Expenses().Count(s.ctx, nil)
	s.Require().NoError(err)
	s.Zero(n)

	xs := []domain.Expense{
		{Amount: 1_25, BudgetID: &a.ID, Description: "coffee"},
		{Amount: 2_75, CategoryID: &catA.ID, Description: "lunch"},
		{Amount: 4_00, BudgetID: &b.ID, Description: "Coffee beans"},
	}
	n, err = s.expenses.CreateMany(s.ctx, scope, xs)
	s.Require().NoError(err)
	s.EqualValues(3, n)
	for _, x := range xs {
		s.NotEmpty(x.ID)
	}

	total, count, err := s.expenses.Total(s.ctx, scope, store.Eq{Field: "budgetId", Value: a.ID})
	s.Require().NoError(err)
	s.Equal(domain.Money(4_00), total)
	s.EqualValues(2, count)

	total, count, err = s.expenses.Total(s.ctx, scope, store.Contains{Field: "description", Value: "coffee", Fold: true})
	s.Require().NoError(err)
	s.Equal(domain.Money(5_25), total)
	s.EqualValues(2, count)
}

func (s *ServiceSuite) TestUpdateAndDeleteExpense() {
	u := s.register("a@x.com")
	scope := s.scopeOf(u.ID)
	a := s.budget(scope, 1000)
	b := s.budget(scope, 1000)

	x := domain.Expense{Amount: 100, BudgetID: &a.ID}
	s.Require().NoError(s.expenses.Create(s.ctx, scope, &x))

	_, err := s.budgets.Summary(s.ctx, scope, a.ID)
	s.Require().NoError(err)
	_, err = s.budgets.Summary(s.ctx, scope, b.ID)
	s.Require().NoError(err)

	x.BudgetID = &b.ID
	x.Amount = 250
	s.Require().NoError(s.expenses.Update(s.ctx, scope, &x))

	// Both the old and the new budget are recomputed.
	sumA, err := s.budgets.Summary(s.ctx, scope, a.ID)
	s.Require().NoError(err)
	s.Zero(sumA.Spent)
	sumB, err := s.budgets.Summary(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Equal(domain.Money(250), sumB.Spent)

	list, err := s.expenses.List(s.ctx, scope, store.Query{Where: store.Gte{Field: "amount", Value: 200}})
	s.Require().NoError(err)
	s.Len(list, 1)

	s.Require().NoError(s.expenses.Delete(s.ctx, scope, x.ID))
	s.ErrorIs(s.expenses.Delete(s.ctx, scope, x.ID), domain.ErrNotFound)

	sumB, err = s.budgets.Summary(s.ctx, scope, b.ID)
	s.Require().NoError(err)
	s.Zero(sumB.Spent)
}
