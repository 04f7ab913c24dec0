package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/cache"
	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/metrics"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/internal/tally/tenancy"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// BudgetService manages budgets and their categories. The allocations of a
// budget's categories never exceed its amount.
type BudgetService struct {
	Store   store.Store
	Cache   cache.Summaries
	Metrics *metrics.Metrics
}

func (s *BudgetService) cache() cache.Summaries {
	if s.Cache == nil {
		return cache.Noop{}
	}
	return s.Cache
}

func validateBudget(b *domain.Budget) error {
	v := &domain.ValidationError{}
	if b.Name == "" {
		v.Add("name", "is required")
	}
	if b.Amount.IsNegative() {
		v.Add("amount", "must not be negative")
	}
	if b.StartDate.IsZero() {
		v.Add("startDate", "is required")
	}
	if b.EndDate != nil && b.EndDate.Before(b.StartDate) {
		v.Add("endDate", "must not be before startDate")
	}
	return v.Err()
}

func validateCategory(c *domain.BudgetCategory) error {
	v := &domain.ValidationError{}
	if c.BudgetID == "" {
		v.Add("budgetId", "is required")
	}
	if c.Name == "" {
		v.Add("name", "is required")
	}
	if c.AllocatedAmount.IsNegative() {
		v.Add("allocatedAmount", "must not be negative")
	}
	return v.Err()
}

// checkProject verifies an optional project reference.
func checkProject(ctx context.Context, s store.Store, projectID *string) error {
	if projectID == nil {
		return nil
	}
	if _, err := s.Projects().Get(ctx, *projectID); err != nil {
		return reference("project", *projectID, err)
	}
	return nil
}

// allocated sums the category allocations of a budget, leaving out the
// categories in except.
func allocated(ctx context.Context, s store.Store, budgetID string, except ...string) (domain.Money, error) {
	where := store.AllOf(store.Eq{Field: "budgetId", Value: budgetID})
	if len(except) > 0 {
		where = store.AllOf(where, store.NotIn{Field: "id", Values: store.Values(except...)})
	}
	res, err := s.BudgetCategories().Aggregate(ctx, where, store.Aggregation{Sum: []string{"allocatedAmount"}})
	if err != nil {
		return 0, err
	}
	return domain.Money(res.Sum["allocatedAmount"]), nil
}

func overAllocated(total, amount domain.Money) error {
	return domain.NewValidationError("allocatedAmount",
		fmt.Sprintf("category allocations %s exceed budget amount %s", total, amount))
}

// Create stores a budget for the scope. A budget without an owner gets the
// scope's owner.
func (s *BudgetService) Create(ctx context.Context, scope domain.Scope, b *domain.Budget) (err error) {
	defer observe(s.Metrics, "budget.create", time.Now(), &err)

	if b.Owner.IsZero() {
		b.Owner = scope.Owner
	}
	if err := validateBudget(b); err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := checkProject(ctx, tx, b.ProjectID); err != nil {
			return err
		}
		if err := tenancy.Wrap(tx, scope).Budgets().Create(ctx, b); err != nil {
			return err
		}
		return audit(ctx, tx, scope.ActorID, ActionCreate, "budget", b.ID, map[string]any{
			"amount": b.Amount.String(),
		})
	})
	if err != nil {
		logFailure(ctx, "failed to create budget", err, slog.String("scope", scope.Owner.String()))
		return err
	}

	slogx.FromContext(ctx).Info("budget created",
		slog.String("budget_id", b.ID),
		slog.String("owner", b.Owner.String()),
		slog.String("amount", b.Amount.String()),
	)
	return nil
}

func (s *BudgetService) Get(ctx context.Context, scope domain.Scope, id string) (domain.Budget, error) {
	return tenancy.Wrap(s.Store, scope).Budgets().Get(ctx, id)
}

// Detail returns the budget with its categories and expenses.
func (s *BudgetService) Detail(ctx context.Context, scope domain.Scope, id string) (domain.Budget, error) {
	budgets := tenancy.Wrap(s.Store, scope).Budgets()
	if _, err := budgets.Get(ctx, id); err != nil {
		return domain.Budget{}, err
	}
	return budgets.First(ctx, store.Query{Where: byID(id), Include: []string{"categories", "expenses"}})
}

func (s *BudgetService) List(ctx context.Context, scope domain.Scope, q store.Query) ([]domain.Budget, error) {
	return tenancy.Wrap(s.Store, scope).Budgets().List(ctx, q)
}

// Update rewrites a budget. Lowering the amount below the current category
// allocations is rejected.
func (s *BudgetService) Update(ctx context.Context, scope domain.Scope, b *domain.Budget) (err error) {
	defer observe(s.Metrics, "budget.update", time.Now(), &err)

	if err := validateBudget(b); err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		budgets := tenancy.Wrap(tx, scope).Budgets()

		// 1. Lock the budget row and re-read it.
		if err := budgets.Touch(ctx, b.ID); err != nil {
			return err
		}
		current, err := budgets.Get(ctx, b.ID)
		if err != nil {
			return err
		}
		b.Owner = current.Owner

		// 2. A decrease must still cover the allocations.
		if b.Amount < current.Amount {
			total, err := allocated(ctx, tx, b.ID)
			if err != nil {
				return err
			}
			if total > b.Amount {
				return domain.NewValidationError("amount",
					fmt.Sprintf("amount %s is below the allocated %s", b.Amount, total))
			}
		}

		if err := checkProject(ctx, tx, b.ProjectID); err != nil {
			return err
		}
		if err := budgets.Update(ctx, b); err != nil {
			return err
		}
		return audit(ctx, tx, scope.ActorID, ActionUpdate, "budget", b.ID, map[string]any{
			"from": current.Amount.String(),
			"to":   b.Amount.String(),
		})
	})
	if err != nil {
		logFailure(ctx, "failed to update budget", err, slog.String("budget_id", b.ID))
		return err
	}

	s.invalidate(ctx, b.ID)
	return nil
}

// Delete removes a budget and its categories. Expenses that referenced it
// are kept and detached.
func (s *BudgetService) Delete(ctx context.Context, scope domain.Scope, id string) (err error) {
	defer observe(s.Metrics, "budget.delete", time.Now(), &err)

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tenancy.Wrap(tx, scope).Budgets().Delete(ctx, id); err != nil {
			return err
		}
		return audit(ctx, tx, scope.ActorID, ActionDelete, "budget", id, nil)
	})
	if err != nil {
		logFailure(ctx, "failed to delete budget", err, slog.String("budget_id", id))
		return err
	}

	s.invalidate(ctx, id)
	slogx.FromContext(ctx).Info("budget deleted", slog.String("budget_id", id))
	return nil
}

// CreateCategory adds a category to a budget if the budget can cover the
// allocation.
func (s *BudgetService) CreateCategory(ctx context.Context, scope domain.Scope, c *domain.BudgetCategory) (err error) {
	defer observe(s.Metrics, "category.create", time.Now(), &err)

	if err := validateCategory(c); err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ts := tenancy.Wrap(tx, scope)

		// 1. Serialise allocation changes on the budget row.
		if err := ts.Budgets().Touch(ctx, c.BudgetID); err != nil {
			return reference("budget", c.BudgetID, err)
		}
		budget, err := ts.Budgets().Get(ctx, c.BudgetID)
		if err != nil {
			return err
		}

		// 2. Check the allocation against the re-read amount.
		total, err := allocated(ctx, tx, c.BudgetID)
		if err != nil {
			return err
		}
		if total+c.AllocatedAmount > budget.Amount {
			return overAllocated(total+c.AllocatedAmount, budget.Amount)
		}

		return ts.BudgetCategories().Create(ctx, c)
	})
	if err != nil {
		logFailure(ctx, "failed to create category", err, slog.String("budget_id", c.BudgetID))
		return err
	}

	s.invalidate(ctx, c.BudgetID)
	slogx.FromContext(ctx).Debug("category created",
		slog.String("category_id", c.ID),
		slog.String("budget_id", c.BudgetID),
		slog.String("allocated", c.AllocatedAmount.String()),
	)
	return nil
}

// UpdateCategory renames or reallocates a category. The category cannot move
// to another budget.
func (s *BudgetService) UpdateCategory(ctx context.Context, scope domain.Scope, c *domain.BudgetCategory) (err error) {
	defer observe(s.Metrics, "category.update", time.Now(), &err)

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		ts := tenancy.Wrap(tx, scope)

		current, err := ts.BudgetCategories().Get(ctx, c.ID)
		if err != nil {
			return err
		}
		if c.BudgetID == "" {
			c.BudgetID = current.BudgetID
		}
		if c.BudgetID != current.BudgetID {
			return domain.NewValidationError("budgetId", "cannot be changed")
		}
		if err := validateCategory(c); err != nil {
			return err
		}

		if err := ts.Budgets().Touch(ctx, c.BudgetID); err != nil {
			return err
		}
		budget, err := ts.Budgets().Get(ctx, c.BudgetID)
		if err != nil {
			return err
		}
		others, err := allocated(ctx, tx, c.BudgetID, c.ID)
		if err != nil {
			return err
		}
		if others+c.AllocatedAmount > budget.Amount {
			return overAllocated(others+c.AllocatedAmount, budget.Amount)
		}

		return ts.BudgetCategories().Update(ctx, c)
	})
	if err != nil {
		logFailure(ctx, "failed to update category", err, slog.String("category_id", c.ID))
		return err
	}

	s.invalidate(ctx, c.BudgetID)
	return nil
}

// DeleteCategory removes a category. Its expenses stay on the budget
// uncategorised.
func (s *BudgetService) DeleteCategory(ctx context.Context, scope domain.Scope, id string) error {
	categories := tenancy.Wrap(s.Store, scope).BudgetCategories()

	c, err := categories.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := categories.Delete(ctx, id); err != nil {
		logFailure(ctx, "failed to delete category", err, slog.String("category_id", id))
		return err
	}

	s.invalidate(ctx, c.BudgetID)
	return nil
}

// ListCategories lists a budget's categories by name.
func (s *BudgetService) ListCategories(ctx context.Context, scope domain.Scope, budgetID string) ([]domain.BudgetCategory, error) {
	ts := tenancy.Wrap(s.Store, scope)
	if _, err := ts.Budgets().Get(ctx, budgetID); err != nil {
		return nil, err
	}
	return ts.BudgetCategories().List(ctx, store.Query{
		Where:   store.Eq{Field: "budgetId", Value: budgetID},
		OrderBy: []store.Order{store.Asc("name"), store.Asc("id")},
	})
}

// Summary rolls up the spend of a budget per category. Results are cached
// until the next write to the budget, its categories or its expenses. A
// summary computed across such a write is returned but not cached.
func (s *BudgetService) Summary(ctx context.Context, scope domain.Scope, budgetID string) (sum domain.BudgetSummary, err error) {
	defer observe(s.Metrics, "budget.summary", time.Now(), &err)
	log := slogx.FromContext(ctx)

	// 1. Take the cache version before anything is read, so a write that
	// lands during the computation keeps its result out of the cache.
	version, err := s.cache().Version(ctx, budgetID)
	cacheable := err == nil
	if err != nil {
		log.Warn("summary cache version read failed", slog.String("budget_id", budgetID), slog.Any("error", err))
	}

	// 2. Always check the scope, cached or not.
	ts := tenancy.Wrap(s.Store, scope)
	budget, err := ts.Budgets().Get(ctx, budgetID)
	if err != nil {
		return domain.BudgetSummary{}, err
	}

	// 3. Serve from cache. A cache failure falls through to the store.
	cached, ok, err := s.cache().Get(ctx, budgetID)
	if err != nil {
		log.Warn("summary cache read failed", slog.String("budget_id", budgetID), slog.Any("error", err))
	}
	s.Metrics.CacheLookup(ok)
	if ok {
		return cached, nil
	}

	// 4. Compute from the store.
	categories, err := ts.BudgetCategories().List(ctx, store.Query{
		Where:   store.Eq{Field: "budgetId", Value: budgetID},
		OrderBy: []store.Order{store.Asc("name"), store.Asc("id")},
	})
	if err != nil {
		return domain.BudgetSummary{}, err
	}
	groups, err := s.Store.Expenses().GroupBy(ctx, []string{"categoryId"},
		store.Eq{Field: "budgetId", Value: budgetID},
		store.Aggregation{Sum: []string{"amount"}})
	if err != nil {
		return domain.BudgetSummary{}, err
	}

	sum = summarize(budget, categories, groups)

	if !cacheable {
		return sum, nil
	}
	switch err := s.cache().Set(ctx, sum, version); {
	case errors.Is(err, cache.ErrStale):
		log.Debug("summary changed while computing", slog.String("budget_id", budgetID))
	case err != nil:
		log.Warn("summary cache write failed", slog.String("budget_id", budgetID), slog.Any("error", err))
	}
	return sum, nil
}

func summarize(b domain.Budget, categories []domain.BudgetCategory, groups []store.Group) domain.BudgetSummary {
	sum := domain.BudgetSummary{
		BudgetID:   b.ID,
		Amount:     b.Amount,
		Categories: make([]domain.CategorySpend, 0, len(categories)),
	}

	spent := make(map[string]store.Group, len(groups))
	for _, g := range groups {
		total := domain.Money(g.Sum["amount"])
		sum.Spent += total
		if key := g.Key("categoryId"); key != "" {
			spent[key] = g
		} else {
			sum.Uncategorized += total
		}
	}

	for _, c := range categories {
		g := spent[c.ID]
		sum.Allocated += c.AllocatedAmount
		sum.Categories = append(sum.Categories, domain.CategorySpend{
			CategoryID: c.ID,
			Name:       c.Name,
			Allocated:  c.AllocatedAmount,
			Spent:      domain.Money(g.Sum["amount"]),
			Expenses:   g.Count,
		})
	}

	sum.Unallocated = sum.Amount - sum.Allocated
	sum.Remaining = sum.Amount - sum.Spent
	return sum
}

// invalidate drops cached summaries after a committed write.
func (s *BudgetService) invalidate(ctx context.Context, budgetIDs ...string) {
	invalidate(ctx, s.cache(), budgetIDs...)
}

func invalidate(ctx context.Context, c cache.Summaries, budgetIDs ...string) {
	ids := budgetIDs[:0:0]
	for _, id := range budgetIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 || c == nil {
		return
	}
	if err := c.Invalidate(ctx, ids...); err != nil && !errors.Is(err, context.Canceled) {
		slogx.FromContext(ctx).Warn("summary cache invalidation failed",
			slog.Any("budget_ids", ids),
			slog.Any("error", err),
		)
	}
}
