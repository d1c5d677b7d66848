package postgres

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
)

const selectColumns = "id, data, created_at, updated_at"

type builder struct {
	sql  strings.Builder
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// where renders the collection predicate and all filters.
func (b *builder) where(q docstore.Query) error {
	b.sql.WriteString(" WHERE collection = ")
	b.sql.WriteString(b.arg(q.Collection))

	for _, f := range q.Filters {
		clause, err := b.filter(f)
		if err != nil {
			return err
		}
		b.sql.WriteString(" AND ")
		b.sql.WriteString(clause)
	}
	return nil
}

func (b *builder) filter(f docstore.Filter) (string, error) {
	path := b.arg(docstore.Path(f.Field)) + "::text[]"
	field := "(data #> " + path + ")"

	switch f.Op {
	case docstore.OpEqual:
		v, err := jsonArg(f.Value)
		if err != nil {
			return "", err
		}
		return field + " = " + b.arg(v) + "::jsonb", nil
	case docstore.OpNotEqual:
		v, err := jsonArg(f.Value)
		if err != nil {
			return "", err
		}
		return "(" + field + " IS NOT NULL AND " + field + " <> " + b.arg(v) + "::jsonb)", nil
	case docstore.OpLess, docstore.OpLessEqual, docstore.OpGreater, docstore.OpGreaterEqual:
		return b.rangeFilter(field, path, f)
	case docstore.OpIn:
		v, err := jsonArg(f.Value)
		if err != nil {
			return "", err
		}
		return field + " IN (SELECT jsonb_array_elements(" + b.arg(v) + "::jsonb))", nil
	case docstore.OpArrayContains:
		v, err := jsonArg([]any{f.Value})
		if err != nil {
			return "", err
		}
		return "(jsonb_typeof(" + field + ") = 'array' AND " + field + " @> " + b.arg(v) + "::jsonb)", nil
	case docstore.OpArrayContainsAny:
		v, err := jsonArg(f.Value)
		if err != nil {
			return "", err
		}
		return "(jsonb_typeof(" + field + ") = 'array' AND EXISTS (SELECT 1 FROM jsonb_array_elements(" + b.arg(v) + "::jsonb) AS candidate WHERE " + field + " @> jsonb_build_array(candidate)))", nil
	}
	return "", fmt.Errorf("docstore: unsupported operator %q", f.Op)
}

// rangeFilter compares with the type the bound value implies. CASE keeps the
// cast from running on documents whose field holds another JSON type.
func (b *builder) rangeFilter(field, path string, f docstore.Filter) (string, error) {
	op := string(f.Op)
	text := "(data #>> " + path + ")"

	switch v := f.Value.(type) {
	case time.Time:
		return "CASE WHEN jsonb_typeof(" + field + ") = 'string' THEN " + text + "::timestamptz END " + op + " " + b.arg(v.UTC()), nil
	case int, int32, int64, float32, float64:
		return "CASE WHEN jsonb_typeof(" + field + ") = 'number' THEN " + text + "::numeric END " + op + " " + b.arg(v) + "::numeric", nil
	case string:
		return "CASE WHEN jsonb_typeof(" + field + ") = 'string' THEN " + text + " END " + op + " " + b.arg(v) + " COLLATE \"C\"", nil
	case bool:
		return "CASE WHEN jsonb_typeof(" + field + ") = 'boolean' THEN " + field + " END " + op + " " + b.arg(strconv.FormatBool(v)) + "::jsonb", nil
	}
	return "", fmt.Errorf("docstore: range filter on %q needs a number, string, bool or time value, got %T", f.Field, f.Value)
}

// orderBy renders the ORDER BY list. RFC3339 strings sort as timestamps so
// differing fractional precision does not break chronology; id breaks ties.
func (b *builder) orderBy(q docstore.Query) string {
	var parts []string
	for _, o := range q.Orders {
		path := b.arg(docstore.Path(o.Field)) + "::text[]"
		dir := " ASC"
		if o.Direction == docstore.Desc {
			dir = " DESC"
		}
		field := "(data #> " + path + ")"
		asTime := "CASE WHEN jsonb_typeof(" + field + ") = 'string' AND (data #>> " + path + ") ~ '^\\d{4}-\\d{2}-\\d{2}T' THEN (data #>> " + path + ")::timestamptz END"
		parts = append(parts, asTime+dir, field+dir)
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", ")
}

func (b *builder) page(q docstore.Query) {
	if q.LimitN > 0 {
		b.sql.WriteString(" LIMIT ")
		b.sql.WriteString(b.arg(q.LimitN))
	}
	if q.OffsetN > 0 {
		b.sql.WriteString(" OFFSET ")
		b.sql.WriteString(b.arg(q.OffsetN))
	}
}

func buildSelect(q docstore.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b builder
	if q.AfterID == "" {
		b.sql.WriteString("SELECT " + selectColumns + " FROM documents")
		if err := b.where(q); err != nil {
			return "", nil, err
		}
		b.sql.WriteString(" ORDER BY ")
		b.sql.WriteString(b.orderBy(q))
		b.page(q)
		return b.sql.String(), b.args, nil
	}

	b.sql.WriteString("WITH ordered AS (SELECT " + selectColumns + ", row_number() OVER (ORDER BY ")
	b.sql.WriteString(b.orderBy(q))
	b.sql.WriteString(") AS position FROM documents")
	if err := b.where(q); err != nil {
		return "", nil, err
	}
	b.sql.WriteString(") SELECT " + selectColumns + " FROM ordered WHERE position > COALESCE((SELECT position FROM ordered WHERE id = ")
	b.sql.WriteString(b.arg(q.AfterID))
	b.sql.WriteString("), 0) ORDER BY position")
	b.page(q)
	return b.sql.String(), b.args, nil
}

func buildCount(q docstore.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b builder
	b.sql.WriteString("SELECT count(*) FROM documents")
	if err := b.where(q); err != nil {
		return "", nil, err
	}
	return b.sql.String(), b.args, nil
}

func jsonArg(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("docstore: failed to encode filter value: %w", err)
	}
	return string(data), nil
}
