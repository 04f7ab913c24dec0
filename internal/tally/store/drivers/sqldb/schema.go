package sqldb

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/store"
)

type kind uint8

const (
	kindText kind = iota
	kindInt
	kindTime
	kindBool
	kindJSON
)

// column maps an API field to a SQL column.
type column struct {
	name string
	kind kind

	// fixed columns cannot be assigned through UpdateMany.
	fixed bool
}

// relation is a to-one link through a foreign key column on this table.
type relation struct {
	column string
	target *schema
}

// schema is the query metadata of a table.
type schema struct {
	table     string
	entity    string
	fields    map[string]column
	relations map[string]relation
	updatedAt bool
}

func (s *schema) column(field string) (column, error) {
	c, ok := s.fields[field]
	if !ok {
		return column{}, fmt.Errorf("%w: %s has no field %q", store.ErrInvalidQuery, s.entity, field)
	}
	return c, nil
}

// value converts a Go value into the representation stored for the column.
func (c column) value(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		v = rv.Elem().Interface()
		rv = rv.Elem()
	}

	switch c.kind {
	case kindText:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
	case kindInt:
		if d, ok := v.(time.Duration); ok {
			return int64(d / time.Second), nil
		}
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint8, reflect.Uint16, reflect.Uint32:
			return int64(rv.Uint()), nil
		}
	case kindTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	case kindBool:
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
	case kindJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", store.ErrInvalidQuery, c.name, err)
		}
		return string(b), nil
	}
	return nil, fmt.Errorf("%w: %s does not accept %T", store.ErrInvalidQuery, c.name, v)
}

// withBase adds id, createdAt and, when the table has one, updatedAt as
// fixed columns.
func withBase(updatedAt bool, m map[string]column) map[string]column {
	m["id"] = column{name: "id", kind: kindText, fixed: true}
	m["createdAt"] = column{name: "created_at", kind: kindTime, fixed: true}
	if updatedAt {
		m["updatedAt"] = column{name: "updated_at", kind: kindTime, fixed: true}
	}
	return m
}
