package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/pkg/idx"
)

// table implements the generic repository operations for one entity.
type table[T any] struct {
	*schema

	// columns is the select list, in the order scan expects.
	columns []string
	scan    func(scanner) (T, error)

	// row returns every column value for insert; mutable returns the columns
	// rewritten by Update.
	row     func(*T) (map[string]any, error)
	mutable func(*T) map[string]any

	id        func(*T) *string
	createdAt func(*T) *time.Time
	updatedAt func(*T) *time.Time

	includes map[string]func(ctx context.Context, e *engine, items []T) error
}

func (t *table[T]) notFound(what string) error {
	return fmt.Errorf("%s %s: %w", t.entity, what, domain.ErrNotFound)
}

// touch bumps updated_at on one row. Inside a transaction the update holds
// the row's write lock until commit.
func (t *table[T]) touch(ctx context.Context, e *engine, id string) error {
	res, err := e.exec(ctx, e.builder().
		Update(t.table).
		Set("updated_at", e.timestamp()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("touch %s: %w", t.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return t.notFound(id)
	}
	return nil
}

func (t *table[T]) get(ctx context.Context, e *engine, id string) (T, error) {
	return t.getBy(ctx, e, "id", id)
}

func (t *table[T]) getBy(ctx context.Context, e *engine, col string, val any) (T, error) {
	var zero T
	row, err := e.queryRow(ctx, e.builder().Select(t.columns...).From(t.table).Where(sq.Eq{col: val}))
	if err != nil {
		return zero, err
	}
	v, err := t.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, t.notFound(fmt.Sprintf("%s=%v", col, val))
	}
	if err != nil {
		return zero, e.mapError(err)
	}
	return v, nil
}

func (t *table[T]) first(ctx context.Context, e *engine, q store.Query) (T, error) {
	var zero T
	q.Take = 1
	items, err := t.list(ctx, e, q)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, t.notFound("matching query")
	}
	return items[0], nil
}

func (t *table[T]) list(ctx context.Context, e *engine, q store.Query) ([]T, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	for _, inc := range q.Include {
		if _, ok := t.includes[inc]; !ok {
			return nil, fmt.Errorf("%w: %s has no include %q", store.ErrInvalidQuery, t.entity, inc)
		}
	}

	where, err := compile(e.d, t.schema, q.Where)
	if err != nil {
		return nil, err
	}
	orders, cols, err := orderBy(t.schema, q.OrderBy)
	if err != nil {
		return nil, err
	}

	conds := sq.And{}
	if where != nil {
		conds = append(conds, where)
	}
	if q.Cursor != "" {
		after, err := t.cursor(ctx, e, q.Cursor, orders, cols)
		if err != nil {
			return nil, err
		}
		conds = append(conds, after)
	}

	b := e.builder().Select(t.columns...).From(t.table).OrderBy(orderClauses(orders, cols)...)
	if len(conds) > 0 {
		b = b.Where(conds)
	}
	switch {
	case q.Take > 0:
		b = b.Limit(uint64(q.Take))
	case q.Skip > 0:
		b = b.Limit(math.MaxInt64)
	}
	if q.Skip > 0 {
		b = b.Offset(uint64(q.Skip))
	}

	items, err := t.collect(ctx, e, b)
	if err != nil {
		return nil, err
	}
	for _, inc := range q.Include {
		if err := t.includes[inc](ctx, e, items); err != nil {
			return nil, fmt.Errorf("include %s: %w", inc, err)
		}
	}
	return items, nil
}

// cursor loads the ordering values of the cursor row.
func (t *table[T]) cursor(ctx context.Context, e *engine, id string, orders []store.Order, cols []column) (sq.Sqlizer, error) {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	row, err := e.queryRow(ctx, e.builder().Select(names...).From(t.table).Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, t.notFound("cursor " + id)
		}
		return nil, e.mapError(err)
	}
	return keyset(orders, cols, values)
}

func (t *table[T]) collect(ctx context.Context, e *engine, b sq.Sqlizer) ([]T, error) {
	rows, err := e.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := t.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, e.mapError(rows.Err())
}

func (t *table[T]) count(ctx context.Context, e *engine, where store.Predicate) (int64, error) {
	cond, err := compile(e.d, t.schema, where)
	if err != nil {
		return 0, err
	}
	b := e.builder().Select("COUNT(*)").From(t.table)
	if cond != nil {
		b = b.Where(cond)
	}
	row, err := e.queryRow(ctx, b)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, e.mapError(err)
	}
	return n, nil
}

// aggregateTarget is one aggregate expression in the select list.
type aggregateTarget struct {
	fn    string
	field string
}

func (t *table[T]) aggregates(a store.Aggregation) ([]string, []aggregateTarget, error) {
	exprs := []string{"COUNT(*)"}
	var targets []aggregateTarget
	add := func(fn string, fields []string) error {
		for _, f := range fields {
			c, err := t.column(f)
			if err != nil {
				return err
			}
			if c.kind != kindInt {
				return fmt.Errorf("%w: cannot %s %q", store.ErrInvalidQuery, strings.ToLower(fn), f)
			}
			switch fn {
			case "SUM":
				exprs = append(exprs, "CAST(COALESCE(SUM("+c.name+"), 0) AS BIGINT)")
			case "AVG":
				exprs = append(exprs, "CAST(AVG("+c.name+") AS DOUBLE PRECISION)")
			default:
				exprs = append(exprs, fn+"("+c.name+")")
			}
			targets = append(targets, aggregateTarget{fn: fn, field: f})
		}
		return nil
	}
	for _, step := range []struct {
		fn     string
		fields []string
	}{{"SUM", a.Sum}, {"AVG", a.Avg}, {"MIN", a.Min}, {"MAX", a.Max}} {
		if err := add(step.fn, step.fields); err != nil {
			return nil, nil, err
		}
	}
	return exprs, targets, nil
}

// aggregateDest allocates scan slots for COUNT(*) followed by the targets.
func aggregateDest(targets []aggregateTarget) []any {
	dest := make([]any, 0, len(targets)+1)
	dest = append(dest, new(int64))
	for _, tg := range targets {
		if tg.fn == "AVG" {
			dest = append(dest, new(sql.NullFloat64))
		} else {
			dest = append(dest, new(sql.NullInt64))
		}
	}
	return dest
}

func aggregateResult(targets []aggregateTarget, dest []any) store.AggregateResult {
	res := store.AggregateResult{
		Count: *dest[0].(*int64),
		Sum:   map[string]int64{},
		Avg:   map[string]float64{},
		Min:   map[string]int64{},
		Max:   map[string]int64{},
	}
	for i, tg := range targets {
		switch tg.fn {
		case "AVG":
			res.Avg[tg.field] = dest[i+1].(*sql.NullFloat64).Float64
		case "SUM":
			res.Sum[tg.field] = dest[i+1].(*sql.NullInt64).Int64
		case "MIN":
			res.Min[tg.field] = dest[i+1].(*sql.NullInt64).Int64
		case "MAX":
			res.Max[tg.field] = dest[i+1].(*sql.NullInt64).Int64
		}
	}
	return res
}

func (t *table[T]) aggregate(ctx context.Context, e *engine, where store.Predicate, a store.Aggregation) (store.AggregateResult, error) {
	exprs, targets, err := t.aggregates(a)
	if err != nil {
		return store.AggregateResult{}, err
	}
	cond, err := compile(e.d, t.schema, where)
	if err != nil {
		return store.AggregateResult{}, err
	}
	b := e.builder().Select(exprs...).From(t.table)
	if cond != nil {
		b = b.Where(cond)
	}
	row, err := e.queryRow(ctx, b)
	if err != nil {
		return store.AggregateResult{}, err
	}
	dest := aggregateDest(targets)
	if err := row.Scan(dest...); err != nil {
		return store.AggregateResult{}, e.mapError(err)
	}
	return aggregateResult(targets, dest), nil
}

func (t *table[T]) groupBy(ctx context.Context, e *engine, by []string, where store.Predicate, a store.Aggregation) ([]store.Group, error) {
	if len(by) == 0 {
		return nil, fmt.Errorf("%w: group by needs at least one field", store.ErrInvalidQuery)
	}
	keys := make([]string, len(by))
	for i, f := range by {
		c, err := t.column(f)
		if err != nil {
			return nil, err
		}
		if c.kind == kindJSON {
			return nil, fmt.Errorf("%w: cannot group by %q", store.ErrInvalidQuery, f)
		}
		keys[i] = c.name
	}
	exprs, targets, err := t.aggregates(a)
	if err != nil {
		return nil, err
	}
	cond, err := compile(e.d, t.schema, where)
	if err != nil {
		return nil, err
	}

	b := e.builder().
		Select(append(slices.Clone(keys), exprs...)...).
		From(t.table).
		GroupBy(keys...).
		OrderBy(keys...)
	if cond != nil {
		b = b.Where(cond)
	}

	rows, err := e.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Group
	for rows.Next() {
		keyVals := make([]any, len(keys))
		dest := make([]any, 0, len(keys)+len(targets)+1)
		for i := range keyVals {
			dest = append(dest, &keyVals[i])
		}
		aggs := aggregateDest(targets)
		dest = append(dest, aggs...)
		if err := rows.Scan(dest...); err != nil {
			return nil, e.mapError(err)
		}
		g := store.Group{Keys: make(map[string]any, len(by)), AggregateResult: aggregateResult(targets, aggs)}
		for i, f := range by {
			g.Keys[f] = normalizeKey(keyVals[i])
		}
		out = append(out, g)
	}
	return out, e.mapError(rows.Err())
}

func normalizeKey(v any) any {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC()
	}
	return v
}

// stamp assigns an ID and the creation timestamps.
func (t *table[T]) stamp(v *T, now time.Time) {
	if id := t.id(v); *id == "" {
		*id = idx.New()
	}
	*t.createdAt(v) = now
	if t.updatedAt != nil {
		*t.updatedAt(v) = now
	}
}

func (t *table[T]) insert(ctx context.Context, e *engine, v *T) error {
	t.stamp(v, e.timestamp())
	row, err := t.row(v)
	if err != nil {
		return fmt.Errorf("create %s: %w", t.entity, err)
	}
	_, err = e.exec(ctx, e.builder().Insert(t.table).SetMap(row))
	if err != nil {
		return fmt.Errorf("create %s: %w", t.entity, err)
	}
	return nil
}

func (t *table[T]) insertMany(ctx context.Context, e *engine, vs []T) (int64, error) {
	if len(vs) == 0 {
		return 0, nil
	}
	now := e.timestamp()
	b := e.builder().Insert(t.table)
	var cols []string
	for i := range vs {
		t.stamp(&vs[i], now)
		row, err := t.row(&vs[i])
		if err != nil {
			return 0, fmt.Errorf("create %s: %w", t.entity, err)
		}
		if cols == nil {
			cols = make([]string, 0, len(row))
			for c := range row {
				cols = append(cols, c)
			}
			sort.Strings(cols)
			b = b.Columns(cols...)
		}
		vals := make([]any, len(cols))
		for j, c := range cols {
			vals[j] = row[c]
		}
		b = b.Values(vals...)
	}
	res, err := e.exec(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", t.entity, err)
	}
	return res.RowsAffected()
}

func (t *table[T]) update(ctx context.Context, e *engine, v *T) error {
	set := t.mutable(v)
	if t.updatedAt != nil {
		now := e.timestamp()
		*t.updatedAt(v) = now
		set["updated_at"] = now
	}
	id := *t.id(v)
	res, err := e.exec(ctx, e.builder().Update(t.table).SetMap(set).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("update %s: %w", t.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return t.notFound(id)
	}
	return nil
}

func (t *table[T]) updateMany(ctx context.Context, e *engine, where store.Predicate, set store.Set) (int64, error) {
	if len(set) == 0 {
		return 0, fmt.Errorf("%w: empty set", store.ErrInvalidQuery)
	}
	assign := make(map[string]any, len(set)+1)
	for f, v := range set {
		c, err := t.column(f)
		if err != nil {
			return 0, err
		}
		if c.fixed {
			return 0, fmt.Errorf("%w: %q cannot be assigned", store.ErrInvalidQuery, f)
		}
		val, err := c.value(v)
		if err != nil {
			return 0, err
		}
		assign[c.name] = val
	}
	if t.updatedAt != nil {
		assign["updated_at"] = e.timestamp()
	}
	return t.execWhere(ctx, e, e.builder().Update(t.table).SetMap(assign), where)
}

func (t *table[T]) delete(ctx context.Context, e *engine, id string) error {
	res, err := e.exec(ctx, e.builder().Delete(t.table).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return t.notFound(id)
	}
	return nil
}

func (t *table[T]) deleteMany(ctx context.Context, e *engine, where store.Predicate) (int64, error) {
	return t.execWhere(ctx, e, e.builder().Delete(t.table), where)
}

func (t *table[T]) execWhere(ctx context.Context, e *engine, b sq.Sqlizer, where store.Predicate) (int64, error) {
	cond, err := compile(e.d, t.schema, where)
	if err != nil {
		return 0, err
	}
	if cond != nil {
		switch bb := b.(type) {
		case sq.UpdateBuilder:
			b = bb.Where(cond)
		case sq.DeleteBuilder:
			b = bb.Where(cond)
		}
	}
	res, err := e.exec(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", t.entity, err)
	}
	return res.RowsAffected()
}
