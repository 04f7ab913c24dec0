// Package cache keeps computed budget summaries out of the database between
// writes. Writers invalidate a budget's entry after their transaction
// commits; readers fall back to the store on a miss or on any cache error.
//
// Every invalidation bumps the budget's version. A reader takes the version
// before it computes and hands it back to Set, which drops the summary when
// an invalidation landed in between.
package cache

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

// ErrStale reports a summary that was not stored because the budget was
// invalidated after its version was read.
var ErrStale = errors.New("cache: summary is stale")

type Summaries interface {
	// Version returns the budget's invalidation counter.
	Version(ctx context.Context, budgetID string) (int64, error)
	// Get returns the cached summary and whether there was one.
	Get(ctx context.Context, budgetID string) (domain.BudgetSummary, bool, error)
	// Set stores s if the budget is still at version, or returns ErrStale.
	Set(ctx context.Context, s domain.BudgetSummary, version int64) error
	Invalidate(ctx context.Context, budgetIDs ...string) error
}

// Noop caches nothing.
type Noop struct{}

func (Noop) Version(context.Context, string) (int64, error) { return 0, nil }

func (Noop) Get(context.Context, string) (domain.BudgetSummary, bool, error) {
	return domain.BudgetSummary{}, false, nil
}

func (Noop) Set(context.Context, domain.BudgetSummary, int64) error { return nil }
func (Noop) Invalidate(context.Context, ...string) error            { return nil }
