package sqldb

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/aussiebroadwan/tally/internal/tally/store"
)

// compile turns a predicate tree into a squirrel condition. A nil predicate
// compiles to nil. Nested statements use ? placeholders; the outer builder
// rewrites them for the dialect.
func compile(d Dialect, s *schema, p store.Predicate) (sq.Sqlizer, error) {
	switch p := p.(type) {
	case nil:
		return nil, nil

	case store.Eq:
		return compare(s, p.Field, p.Value, func(c string, v any) sq.Sqlizer { return sq.Eq{c: v} })
	case store.Ne:
		return compare(s, p.Field, p.Value, func(c string, v any) sq.Sqlizer { return sq.NotEq{c: v} })
	case store.Gt:
		return ordered(s, p.Field, p.Value, func(c string, v any) sq.Sqlizer { return sq.Gt{c: v} })
	case store.Gte:
		return ordered(s, p.Field, p.Value, func(c string, v any) sq.Sqlizer { return sq.GtOrEq{c: v} })
	case store.Lt:
		return ordered(s, p.Field, p.Value, func(c string, v any) sq.Sqlizer { return sq.Lt{c: v} })
	case store.Lte:
		return ordered(s, p.Field, p.Value, func(c string, v any) sq.Sqlizer { return sq.LtOrEq{c: v} })
	case store.Between:
		lo, err := ordered(s, p.Field, p.From, func(c string, v any) sq.Sqlizer { return sq.GtOrEq{c: v} })
		if err != nil {
			return nil, err
		}
		hi, err := ordered(s, p.Field, p.To, func(c string, v any) sq.Sqlizer { return sq.LtOrEq{c: v} })
		if err != nil {
			return nil, err
		}
		return sq.And{lo, hi}, nil

	case store.In:
		c, vs, err := list(s, p.Field, p.Values)
		if err != nil {
			return nil, err
		}
		return sq.Eq{c: vs}, nil
	case store.NotIn:
		c, vs, err := list(s, p.Field, p.Values)
		if err != nil {
			return nil, err
		}
		return sq.NotEq{c: vs}, nil

	case store.IsNull:
		c, err := s.column(p.Field)
		if err != nil {
			return nil, err
		}
		return sq.Eq{c.name: nil}, nil
	case store.NotNull:
		c, err := s.column(p.Field)
		if err != nil {
			return nil, err
		}
		return sq.NotEq{c.name: nil}, nil

	case store.Contains:
		return match(d, s, p.Field, p.Value, p.Fold, true, true)
	case store.StartsWith:
		return match(d, s, p.Field, p.Value, p.Fold, false, true)
	case store.EndsWith:
		return match(d, s, p.Field, p.Value, p.Fold, true, false)

	case store.And:
		out := make(sq.And, 0, len(p))
		for _, child := range p {
			c, err := compile(d, s, child)
			if err != nil {
				return nil, err
			}
			if c != nil {
				out = append(out, c)
			}
		}
		return out, nil
	case store.Or:
		out := make(sq.Or, 0, len(p))
		for _, child := range p {
			c, err := compile(d, s, child)
			if err != nil {
				return nil, err
			}
			if c == nil {
				// A nil child matches everything.
				return sq.Expr("1=1"), nil
			}
			out = append(out, c)
		}
		return out, nil
	case store.Not:
		inner, err := compile(d, s, p.P)
		if err != nil {
			return nil, err
		}
		if inner == nil {
			return sq.Expr("1=0"), nil
		}
		sql, args, err := inner.ToSql()
		if err != nil {
			return nil, err
		}
		return sq.Expr("NOT ("+sql+")", args...), nil

	case store.Has:
		rel, ok := s.relations[p.Relation]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no relation %q", store.ErrInvalidQuery, s.entity, p.Relation)
		}
		sub := sq.Select("id").From(rel.target.table)
		inner, err := compile(d, rel.target, p.Where)
		if err != nil {
			return nil, err
		}
		if inner != nil {
			sub = sub.Where(inner)
		}
		sql, args, err := sub.ToSql()
		if err != nil {
			return nil, err
		}
		return sq.Expr(rel.column+" IN ("+sql+")", args...), nil
	}

	return nil, fmt.Errorf("%w: unsupported predicate %T", store.ErrInvalidQuery, p)
}

func compare(s *schema, field string, v any, build func(string, any) sq.Sqlizer) (sq.Sqlizer, error) {
	c, err := s.column(field)
	if err != nil {
		return nil, err
	}
	val, err := c.value(v)
	if err != nil {
		return nil, err
	}
	return build(c.name, val), nil
}

func ordered(s *schema, field string, v any, build func(string, any) sq.Sqlizer) (sq.Sqlizer, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: range comparison on %q with nil", store.ErrInvalidQuery, field)
	}
	return compare(s, field, v, build)
}

func list(s *schema, field string, values []any) (string, []any, error) {
	c, err := s.column(field)
	if err != nil {
		return "", nil, err
	}
	out := make([]any, 0, len(values))
	for _, v := range values {
		val, err := c.value(v)
		if err != nil {
			return "", nil, err
		}
		out = append(out, val)
	}
	return c.name, out, nil
}

func match(d Dialect, s *schema, field, value string, fold, leading, trailing bool) (sq.Sqlizer, error) {
	c, err := s.column(field)
	if err != nil {
		return nil, err
	}
	if c.kind != kindText {
		return nil, fmt.Errorf("%w: %q is not a text field", store.ErrInvalidQuery, field)
	}

	if !fold && d.GlobMatch {
		pattern := globEscape(value)
		if leading {
			pattern = "*" + pattern
		}
		if trailing {
			pattern += "*"
		}
		return sq.Expr(c.name+" GLOB ?", pattern), nil
	}

	pattern := likeEscape(value)
	if leading {
		pattern = "%" + pattern
	}
	if trailing {
		pattern += "%"
	}
	if fold {
		return sq.Expr("LOWER("+c.name+") LIKE LOWER(?) ESCAPE '\\'", pattern), nil
	}
	return sq.Expr(c.name+" LIKE ? ESCAPE '\\'", pattern), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeEscape(s string) string { return likeEscaper.Replace(s) }

var globEscaper = strings.NewReplacer(`[`, `[[]`, `*`, `[*]`, `?`, `[?]`)

func globEscape(s string) string { return globEscaper.Replace(s) }

// orderBy resolves the requested ordering and appends the id tiebreaker.
func orderBy(s *schema, orders []store.Order) ([]store.Order, []column, error) {
	out := make([]store.Order, 0, len(orders)+1)
	cols := make([]column, 0, len(orders)+1)
	hasID := false
	for _, o := range orders {
		c, err := s.column(o.Field)
		if err != nil {
			return nil, nil, err
		}
		if c.kind == kindJSON {
			return nil, nil, fmt.Errorf("%w: cannot order by %q", store.ErrInvalidQuery, o.Field)
		}
		out = append(out, o)
		cols = append(cols, c)
		if c.name == "id" {
			hasID = true
			break
		}
	}
	if !hasID {
		out = append(out, store.Order{Field: "id"})
		cols = append(cols, s.fields["id"])
	}
	return out, cols, nil
}

// orderClauses renders the ordering with NULL as the lowest value: first
// when ascending, last when descending. Both engines then agree.
func orderClauses(orders []store.Order, cols []column) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		dir, nulls := "ASC", " NULLS FIRST"
		if o.Desc {
			dir, nulls = "DESC", " NULLS LAST"
		}
		if cols[i].name == "id" {
			nulls = ""
		}
		out[i] = cols[i].name + " " + dir + nulls
	}
	return out
}

// keyset builds the condition selecting rows at or after the cursor row in
// the given order. values are the cursor row's values of cols; the last
// column is the unique id.
func keyset(orders []store.Order, cols []column, values []any) (sq.Sqlizer, error) {
	if values[len(values)-1] == nil {
		return nil, fmt.Errorf("%w: cursor row has no id", store.ErrInvalidQuery)
	}
	or := make(sq.Or, 0, len(cols))
	for i := range cols {
		after, ok := follows(cols[i].name, orders[i].Desc, values[i], i == len(cols)-1)
		if !ok {
			continue
		}
		and := make(sq.And, 0, i+1)
		for j := 0; j < i; j++ {
			// Eq with a nil value renders IS NULL.
			and = append(and, sq.Eq{cols[j].name: values[j]})
		}
		and = append(and, after)
		or = append(or, and)
	}
	return or, nil
}

// follows is the condition on one column for rows ordered after value, with
// NULL lowest. inclusive admits value itself. ok is false when nothing can
// follow value.
func follows(col string, desc bool, value any, inclusive bool) (sq.Sqlizer, bool) {
	switch {
	case value == nil && desc:
		return nil, false
	case value == nil:
		return sq.NotEq{col: nil}, true
	case desc && inclusive:
		return sq.LtOrEq{col: value}, true
	case desc:
		return sq.Or{sq.Lt{col: value}, sq.Eq{col: nil}}, true
	case inclusive:
		return sq.GtOrEq{col: value}, true
	default:
		return sq.Gt{col: value}, true
	}
}
