package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	tests := []struct {
		name     string
		query    docstore.Query
		contains []string
		args     []any
	}{
		{
			name:     "collection_only",
			query:    docstore.From("users"),
			contains: []string{"FROM documents WHERE collection = $1", "ORDER BY id ASC"},
			args:     []any{"users"},
		},
		{
			name:  "equal_encodes_json",
			query: docstore.From("workshops").Where("status", docstore.OpEqual, "published"),
			contains: []string{
				"(data #> $2::text[]) = $3::jsonb",
			},
			args: []any{"workshops", []string{"status"}, `"published"`},
		},
		{
			name:     "nested_path",
			query:    docstore.From("users").Where("profile.role", docstore.OpEqual, "workshop_creator"),
			contains: []string{"(data #> $2::text[])"},
			args:     []any{"users", []string{"profile", "role"}, `"workshop_creator"`},
		},
		{
			name:     "time_range_casts_timestamptz",
			query:    docstore.From("workshops").Where("scheduledDate", docstore.OpGreaterEqual, at),
			contains: []string{"::timestamptz END >= $3"},
			args:     []any{"workshops", []string{"scheduledDate"}, at.UTC()},
		},
		{
			name:     "number_range_casts_numeric",
			query:    docstore.From("rewards").Where("cost", docstore.OpLess, 3),
			contains: []string{"::numeric END < $3::numeric"},
			args:     []any{"rewards", []string{"cost"}, 3},
		},
		{
			name:     "array_contains_wraps_value",
			query:    docstore.From("questions").Where("tags", docstore.OpArrayContains, "sql"),
			contains: []string{"@> $3::jsonb"},
			args:     []any{"questions", []string{"tags"}, `["sql"]`},
		},
		{
			name:     "limit_and_offset",
			query:    docstore.From("users").Limit(10).Offset(20),
			contains: []string{"LIMIT $2", "OFFSET $3"},
			args:     []any{"users", 10, 20},
		},
		{
			name:     "start_after_uses_row_number",
			query:    docstore.From("users").OrderBy("createdAt", docstore.Desc).StartAfter("u1").Limit(5),
			contains: []string{"row_number() OVER (ORDER BY", " DESC", "WHERE id = $3", "LIMIT $4"},
			args:     []any{[]string{"createdAt"}, "users", "u1", 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildSelect(tt.query)
			require.NoError(t, err)
			for _, fragment := range tt.contains {
				assert.Contains(t, sql, fragment)
			}
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestBuildSelect_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		query docstore.Query
	}{
		{name: "no_collection", query: docstore.Query{}},
		{name: "in_without_slice", query: docstore.From("users").Where("role", docstore.OpIn, "admin")},
		{name: "negative_limit", query: docstore.From("users").Limit(-1)},
		{name: "range_on_slice", query: docstore.From("users").Where("tags", docstore.OpGreater, []string{"a"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := buildSelect(tt.query)
			assert.Error(t, err)
		})
	}
}

func TestBuildCount(t *testing.T) {
	sql, args, err := buildCount(docstore.From("enrollments").Where("status", docstore.OpEqual, "enrolled").Limit(3))
	require.NoError(t, err)
	assert.Contains(t, sql, "SELECT count(*) FROM documents WHERE collection = $1")
	assert.NotContains(t, sql, "LIMIT")
	assert.Len(t, args, 3)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, expected: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, expected: true},
		{name: "unique_violation", err: &pgconn.PgError{Code: "23505"}, expected: true},
		{name: "wrapped", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), expected: true},
		{name: "check_violation", err: &pgconn.PgError{Code: "23514"}, expected: false},
		{name: "domain_error", err: errors.New("workshop is full"), expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}
