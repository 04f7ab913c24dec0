package store

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tally/internal/tally/domain"
)

// ErrInvalidQuery reports a query that names an unknown field, relation or
// include, or uses an operator the field does not support.
var ErrInvalidQuery = fmt.Errorf("%w: invalid query", domain.ErrValidation)

// Query selects rows for First and List.
//
// Cursor is the ID of a row. The page starts at that row (inclusive) in the
// requested order; use Skip: 1 to start after it. Take of zero means no
// limit.
type Query struct {
	Where   Predicate
	OrderBy []Order
	Cursor  string
	Take    int
	Skip    int
	Include []string
}

// Validate checks the pagination bounds.
func (q Query) Validate() error {
	if q.Take < 0 {
		return fmt.Errorf("%w: take must not be negative", ErrInvalidQuery)
	}
	if q.Skip < 0 {
		return fmt.Errorf("%w: skip must not be negative", ErrInvalidQuery)
	}
	return nil
}

// Order sorts by a field.
type Order struct {
	Field string
	Desc  bool
}

// Asc and Desc are shorthands for Order values.
func Asc(field string) Order  { return Order{Field: field} }
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// Predicate is a node of a filter tree. Field names are the camelCase names
// used by the domain types (budgetId, allocatedAmount, createdAt).
type Predicate interface {
	predicate()
}

type (
	// Eq matches Field = Value. A nil Value matches NULL.
	Eq struct {
		Field string
		Value any
	}
	// Ne matches Field <> Value. A nil Value matches NOT NULL.
	Ne struct {
		Field string
		Value any
	}
	// In matches Field IN (Values...). An empty list matches nothing.
	In struct {
		Field  string
		Values []any
	}
	// NotIn matches Field NOT IN (Values...). An empty list matches everything.
	NotIn struct {
		Field  string
		Values []any
	}
	Gt struct {
		Field string
		Value any
	}
	Gte struct {
		Field string
		Value any
	}
	Lt struct {
		Field string
		Value any
	}
	Lte struct {
		Field string
		Value any
	}
	// Between matches From <= Field <= To.
	Between struct {
		Field    string
		From, To any
	}
	// Contains, StartsWith and EndsWith match strings. Fold makes the match
	// case-insensitive.
	Contains struct {
		Field string
		Value string
		Fold  bool
	}
	StartsWith struct {
		Field string
		Value string
		Fold  bool
	}
	EndsWith struct {
		Field string
		Value string
		Fold  bool
	}
	IsNull  struct{ Field string }
	NotNull struct{ Field string }

	// And matches when every child matches. An empty And matches everything.
	And []Predicate
	// Or matches when any child matches. An empty Or matches nothing.
	Or []Predicate
	// Not negates its child.
	Not struct{ P Predicate }

	// Has matches rows whose to-one Relation points at a row matching Where.
	// A nil Where only requires the relation to be set.
	Has struct {
		Relation string
		Where    Predicate
	}
)

func (Eq) predicate()         {}
func (Ne) predicate()         {}
func (In) predicate()         {}
func (NotIn) predicate()      {}
func (Gt) predicate()         {}
func (Gte) predicate()        {}
func (Lt) predicate()         {}
func (Lte) predicate()        {}
func (Between) predicate()    {}
func (Contains) predicate()   {}
func (StartsWith) predicate() {}
func (EndsWith) predicate()   {}
func (IsNull) predicate()     {}
func (NotNull) predicate()    {}
func (And) predicate()        {}
func (Or) predicate()         {}
func (Not) predicate()        {}
func (Has) predicate()        {}

// AllOf combines predicates with And, dropping nil entries. It returns nil
// when nothing is left and the single predicate when only one is.
func AllOf(ps ...Predicate) Predicate {
	out := make(And, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// Values converts a typed slice into the []any that In and NotIn take.
func Values[T any](vs ...T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// Set assigns fields in UpdateMany. Keys are field names; updatedAt is always
// bumped and cannot be set.
type Set map[string]any

// Aggregation names the fields to aggregate. Count is always computed.
type Aggregation struct {
	Sum []string
	Avg []string
	Min []string
	Max []string
}

// AggregateResult holds aggregate values keyed by field name. Sum, Min and
// Max are exact integers; Avg is a float. Aggregates over no rows are zero.
type AggregateResult struct {
	Count int64
	Sum   map[string]int64
	Avg   map[string]float64
	Min   map[string]int64
	Max   map[string]int64
}

// Group is one row of a GroupBy. Keys holds the grouping field values; a
// NULL key is a nil value.
type Group struct {
	Keys map[string]any
	AggregateResult
}

// Key returns the grouping value of field as a string, or "" for NULL.
func (g Group) Key(field string) string {
	switch v := g.Keys[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }
