package docstore

import (
	"fmt"
	"strings"
)

type Op string

const (
	OpEqual            Op = "=="
	OpNotEqual         Op = "!="
	OpLess             Op = "<"
	OpLessEqual        Op = "<="
	OpGreater          Op = ">"
	OpGreaterEqual     Op = ">="
	OpIn               Op = "in"
	OpArrayContains    Op = "array-contains"
	OpArrayContainsAny Op = "array-contains-any"
)

type Direction int

const (
	Asc Direction = iota
	Desc
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents of one collection. Build it with From and the
// chainable methods; every method returns a modified copy.
type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
	LimitN     int
	OffsetN    int
	// AfterID resumes the ordered result after the document with this id.
	AfterID string
}

func From(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderBy(field string, dir Direction) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Field: field, Direction: dir})
	return q
}

func (q Query) Limit(n int) Query {
	q.LimitN = n
	return q
}

func (q Query) Offset(n int) Query {
	q.OffsetN = n
	return q
}

func (q Query) StartAfter(id string) Query {
	q.AfterID = id
	return q
}

// Validate rejects queries no driver can run.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("docstore: query without collection")
	}
	for _, f := range q.Filters {
		if f.Field == "" {
			return fmt.Errorf("docstore: filter without field")
		}
		switch f.Op {
		case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpArrayContains:
		case OpIn, OpArrayContainsAny:
			if !isSlice(f.Value) {
				return fmt.Errorf("docstore: %s on %q needs a slice value", f.Op, f.Field)
			}
		default:
			return fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	if q.LimitN < 0 || q.OffsetN < 0 {
		return fmt.Errorf("docstore: negative limit or offset")
	}
	return nil
}

// Path splits a dotted field name into its segments.
func Path(field string) []string {
	return strings.Split(field, ".")
}

func isSlice(v any) bool {
	switch v.(type) {
	case []string, []any, []int, []bool:
		return true
	}
	return false
}
