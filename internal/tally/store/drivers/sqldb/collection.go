package sqldb

import (
	"context"

	"github.com/aussiebroadwan/tally/internal/tally/store"
)

// collection adapts a table to the store.Collection surface. Entity repos
// embed it and add their own lookups.
type collection[T any] struct {
	t *table[T]
	e *engine
}

func (c collection[T]) Get(ctx context.Context, id string) (T, error) {
	return c.t.get(ctx, c.e, id)
}

func (c collection[T]) First(ctx context.Context, q store.Query) (T, error) {
	return c.t.first(ctx, c.e, q)
}

func (c collection[T]) List(ctx context.Context, q store.Query) ([]T, error) {
	return c.t.list(ctx, c.e, q)
}

func (c collection[T]) Count(ctx context.Context, where store.Predicate) (int64, error) {
	return c.t.count(ctx, c.e, where)
}

func (c collection[T]) Aggregate(ctx context.Context, where store.Predicate, a store.Aggregation) (store.AggregateResult, error) {
	return c.t.aggregate(ctx, c.e, where, a)
}

func (c collection[T]) GroupBy(ctx context.Context, by []string, where store.Predicate, a store.Aggregation) ([]store.Group, error) {
	return c.t.groupBy(ctx, c.e, by, where, a)
}

func (c collection[T]) Create(ctx context.Context, v *T) error {
	return c.t.insert(ctx, c.e, v)
}

func (c collection[T]) CreateMany(ctx context.Context, vs []T) (int64, error) {
	return c.t.insertMany(ctx, c.e, vs)
}

func (c collection[T]) Update(ctx context.Context, v *T) error {
	return c.t.update(ctx, c.e, v)
}

func (c collection[T]) UpdateMany(ctx context.Context, where store.Predicate, set store.Set) (int64, error) {
	return c.t.updateMany(ctx, c.e, where, set)
}

func (c collection[T]) Delete(ctx context.Context, id string) error {
	return c.t.delete(ctx, c.e, id)
}

func (c collection[T]) DeleteMany(ctx context.Context, where store.Predicate) (int64, error) {
	return c.t.deleteMany(ctx, c.e, where)
}

// loadChildren fetches the rows of child whose fkField is one of parentIDs,
// grouped by that foreign key.
func loadChildren[C any](ctx context.Context, e *engine, child *table[C], fkField string, parentIDs []string, fk func(C) *string) (map[string][]C, error) {
	out := make(map[string][]C, len(parentIDs))
	if len(parentIDs) == 0 {
		return out, nil
	}
	items, err := child.list(ctx, e, store.Query{
		Where:   store.In{Field: fkField, Values: store.Values(parentIDs...)},
		OrderBy: []store.Order{store.Asc("createdAt")},
	})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if key := fk(item); key != nil {
			out[*key] = append(out[*key], item)
		}
	}
	return out, nil
}
