package tenancy

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
)

// collection confines a raw repository to the rows matching filter.
type collection[T any] struct {
	inner  store.Collection[T]
	filter store.Predicate
	entity string

	id func(*T) string

	// admit rejects a created or updated row that would land outside the
	// scope or point at rows outside it.
	admit func(ctx context.Context, v *T) error

	// locked fields cannot be assigned through UpdateMany. They hold
	// references or allocation amounts that are checked row by row.
	locked []string
}

func (c collection[T]) where(p store.Predicate) store.Predicate {
	return store.AllOf(c.filter, p)
}

// check returns nil when id is inside the scope, domain.ErrCrossTenant when
// it exists elsewhere and domain.ErrNotFound when it does not exist.
func (c collection[T]) check(ctx context.Context, id string) error {
	n, err := c.inner.Count(ctx, c.where(store.Eq{Field: "id", Value: id}))
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := c.inner.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%s %s: %w", c.entity, id, domain.ErrCrossTenant)
}

func (c collection[T]) Get(ctx context.Context, id string) (T, error) {
	v, err := c.inner.First(ctx, store.Query{Where: c.where(store.Eq{Field: "id", Value: id})})
	if err == nil || !store.IsNotFound(err) {
		return v, err
	}
	var zero T
	if err := c.check(ctx, id); err != nil {
		return zero, err
	}
	return zero, fmt.Errorf("%s %s: %w", c.entity, id, domain.ErrNotFound)
}

func (c collection[T]) First(ctx context.Context, q store.Query) (T, error) {
	q.Where = c.where(q.Where)
	if q.Cursor != "" {
		if err := c.check(ctx, q.Cursor); err != nil {
			var zero T
			return zero, err
		}
	}
	return c.inner.First(ctx, q)
}

func (c collection[T]) List(ctx context.Context, q store.Query) ([]T, error) {
	q.Where = c.where(q.Where)
	if q.Cursor != "" {
		if err := c.check(ctx, q.Cursor); err != nil {
			return nil, err
		}
	}
	return c.inner.List(ctx, q)
}

func (c collection[T]) Count(ctx context.Context, where store.Predicate) (int64, error) {
	return c.inner.Count(ctx, c.where(where))
}

func (c collection[T]) Aggregate(ctx context.Context, where store.Predicate, a store.Aggregation) (store.AggregateResult, error) {
	return c.inner.Aggregate(ctx, c.where(where), a)
}

func (c collection[T]) GroupBy(ctx context.Context, by []string, where store.Predicate, a store.Aggregation) ([]store.Group, error) {
	return c.inner.GroupBy(ctx, by, c.where(where), a)
}

func (c collection[T]) Create(ctx context.Context, v *T) error {
	if err := c.admit(ctx, v); err != nil {
		return err
	}
	return c.inner.Create(ctx, v)
}

func (c collection[T]) CreateMany(ctx context.Context, vs []T) (int64, error) {
	for i := range vs {
		if err := c.admit(ctx, &vs[i]); err != nil {
			return 0, err
		}
	}
	return c.inner.CreateMany(ctx, vs)
}

func (c collection[T]) Update(ctx context.Context, v *T) error {
	if err := c.check(ctx, c.id(v)); err != nil {
		return err
	}
	if err := c.admit(ctx, v); err != nil {
		return err
	}
	return c.inner.Update(ctx, v)
}

func (c collection[T]) UpdateMany(ctx context.Context, where store.Predicate, set store.Set) (int64, error) {
	for _, f := range c.locked {
		if _, ok := set[f]; ok {
			return 0, fmt.Errorf("%w: %s %q cannot be assigned in bulk", store.ErrInvalidQuery, c.entity, f)
		}
	}
	return c.inner.UpdateMany(ctx, c.where(where), set)
}

func (c collection[T]) Delete(ctx context.Context, id string) error {
	if err := c.check(ctx, id); err != nil {
		return err
	}
	return c.inner.Delete(ctx, id)
}

func (c collection[T]) DeleteMany(ctx context.Context, where store.Predicate) (int64, error) {
	return c.inner.DeleteMany(ctx, c.where(where))
}

// ownedBy admits rows whose owner is the scope's owner.
func ownedBy[T any](scope domain.Scope, entity string, owner func(*T) domain.Owner) func(context.Context, *T) error {
	return func(_ context.Context, v *T) error {
		o := owner(v)
		if o.IsZero() {
			return domain.NewValidationError("owner", "is required")
		}
		if o != scope.Owner {
			return fmt.Errorf("%s owned by %s outside %s: %w", entity, o, scope.Owner, domain.ErrCrossTenant)
		}
		return nil
	}
}

// childOf admits rows whose parent is inside the scope.
func childOf[T, P any](parent collection[P], parentID func(*T) string) func(context.Context, *T) error {
	return func(ctx context.Context, v *T) error {
		return parent.check(ctx, parentID(v))
	}
}
