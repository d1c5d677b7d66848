package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	tests := []struct {
		name     string
		page     int
		limit    int
		total    int
		expected Pagination
	}{
		{name: "empty", page: 1, limit: 20, total: 0, expected: Pagination{Page: 1, Limit: 20}},
		{name: "first_of_three", page: 1, limit: 10, total: 25, expected: Pagination{Page: 1, Limit: 10, Total: 25, TotalPages: 3, HasNext: true}},
		{name: "middle", page: 2, limit: 10, total: 25, expected: Pagination{Page: 2, Limit: 10, Total: 25, TotalPages: 3, HasNext: true, HasPrev: true}},
		{name: "last", page: 3, limit: 10, total: 30, expected: Pagination{Page: 3, Limit: 10, Total: 30, TotalPages: 3, HasPrev: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, paginate(tt.page, tt.limit, tt.total))
		})
	}
}

func TestPageAndLimit(t *testing.T) {
	page, limit := pageAndLimit(0, 0, 50)
	assert.Equal(t, 1, page)
	assert.Equal(t, 50, limit)

	page, limit = pageAndLimit(4, 500, 20)
	assert.Equal(t, 4, page)
	assert.Equal(t, 100, limit)
}

func TestPeriod(t *testing.T) {
	assert.Equal(t, 7*24*time.Hour, Period("7d", time.Hour))
	assert.Equal(t, 30*24*time.Hour, Period("30d", time.Hour))
	assert.Equal(t, 90*24*time.Hour, Period("90d", time.Hour))
	assert.Equal(t, time.Hour, Period("1y", time.Hour))
}

func TestTopN(t *testing.T) {
	counts := map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}
	keys := topN(counts, 3, func(k string, _ int) string { return k })
	assert.Equal(t, []string{"c", "a", "b"}, keys)
	assert.Empty(t, topN(map[string]int{}, 3, func(k string, _ int) string { return k }))
}
