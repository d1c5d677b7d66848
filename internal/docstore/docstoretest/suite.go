// Package docstoretest checks that a docstore driver honours the Store contract.
package docstoretest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Count     int       `json:"count"`
	Active    bool      `json:"active"`
	Tags      []string  `json:"tags"`
	At        time.Time `json:"at"`
	Owner     owner     `json:"owner"`
	Remaining *int      `json:"remaining,omitempty"`
}

type owner struct {
	Role string `json:"role"`
}

// Run exercises store. Every run uses a fresh collection name so a shared
// database can be reused between runs.
func Run(t *testing.T, store docstore.Store) {
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("create_get_delete", func(t *testing.T) {
		c := collection()
		in := item{ID: "a", Name: "alpha", Count: 1, At: base}
		require.NoError(t, store.Create(ctx, c, in.ID, in))

		err := store.Create(ctx, c, in.ID, in)
		assert.ErrorIs(t, err, docstore.ErrAlreadyExists)

		got, err := docstore.GetAs[item](ctx, store, c, "a")
		require.NoError(t, err)
		assert.Equal(t, "alpha", got.Name)
		assert.True(t, got.At.Equal(base))

		require.NoError(t, store.Delete(ctx, c, "a"))
		require.NoError(t, store.Delete(ctx, c, "a"), "deleting a missing document is not an error")

		_, err = store.Get(ctx, c, "a")
		assert.ErrorIs(t, err, docstore.ErrNotFound)

		exists, err := docstore.Exists(ctx, store, c, "a")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("set_replaces", func(t *testing.T) {
		c := collection()
		require.NoError(t, store.Set(ctx, c, "a", item{ID: "a", Name: "first"}))
		require.NoError(t, store.Set(ctx, c, "a", item{ID: "a", Name: "second"}))

		doc, err := store.Get(ctx, c, "a")
		require.NoError(t, err)
		var got item
		require.NoError(t, doc.Decode(&got))
		assert.Equal(t, "second", got.Name)
		assert.False(t, doc.CreatedAt.After(doc.UpdatedAt))
	})

	t.Run("query", func(t *testing.T) {
		c := collection()
		items := []item{
			{ID: "a", Name: "alpha", Count: 3, Active: true, Tags: []string{"sql", "python"}, At: base.Add(2 * time.Hour), Owner: owner{Role: "admin"}},
			{ID: "b", Name: "bravo", Count: 1, Active: false, Tags: []string{"r"}, At: base.Add(1 * time.Hour), Owner: owner{Role: "member"}},
			{ID: "c", Name: "charlie", Count: 2, Active: true, Tags: []string{"python"}, At: base.Add(123456789 * time.Nanosecond), Owner: owner{Role: "member"}},
			{ID: "d", Name: "delta", Count: 5, Active: true, Tags: []string{}, At: base.Add(3 * time.Hour), Owner: owner{Role: "admin"}},
		}
		for _, it := range items {
			require.NoError(t, store.Create(ctx, c, it.ID, it))
		}

		tests := []struct {
			name     string
			query    docstore.Query
			expected []string
		}{
			{
				name:     "equal_bool",
				query:    docstore.From(c).Where("active", docstore.OpEqual, true).OrderBy("count", docstore.Asc),
				expected: []string{"c", "a", "d"},
			},
			{
				name:     "not_equal",
				query:    docstore.From(c).Where("name", docstore.OpNotEqual, "alpha").OrderBy("name", docstore.Asc),
				expected: []string{"b", "c", "d"},
			},
			{
				name:     "number_range",
				query:    docstore.From(c).Where("count", docstore.OpGreaterEqual, 2).Where("count", docstore.OpLess, 5).OrderBy("count", docstore.Desc),
				expected: []string{"a", "c"},
			},
			{
				name:     "time_range",
				query:    docstore.From(c).Where("at", docstore.OpGreater, base.Add(time.Hour)).OrderBy("at", docstore.Asc),
				expected: []string{"a", "d"},
			},
			{
				name:     "time_order_with_mixed_precision",
				query:    docstore.From(c).OrderBy("at", docstore.Asc),
				expected: []string{"c", "b", "a", "d"},
			},
			{
				name:     "in",
				query:    docstore.From(c).Where("name", docstore.OpIn, []string{"bravo", "delta", "zulu"}).OrderBy("name", docstore.Asc),
				expected: []string{"b", "d"},
			},
			{
				name:     "array_contains",
				query:    docstore.From(c).Where("tags", docstore.OpArrayContains, "python").OrderBy("name", docstore.Asc),
				expected: []string{"a", "c"},
			},
			{
				name:     "array_contains_any",
				query:    docstore.From(c).Where("tags", docstore.OpArrayContainsAny, []string{"r", "sql"}).OrderBy("name", docstore.Asc),
				expected: []string{"a", "b"},
			},
			{
				name:     "nested_field",
				query:    docstore.From(c).Where("owner.role", docstore.OpEqual, "admin").OrderBy("name", docstore.Desc),
				expected: []string{"d", "a"},
			},
			{
				name:     "limit_offset",
				query:    docstore.From(c).OrderBy("count", docstore.Asc).Offset(1).Limit(2),
				expected: []string{"c", "a"},
			},
			{
				name:     "start_after",
				query:    docstore.From(c).OrderBy("count", docstore.Asc).StartAfter("c").Limit(2),
				expected: []string{"a", "d"},
			},
			{
				name:     "missing_field_matches_nothing",
				query:    docstore.From(c).Where("remaining", docstore.OpEqual, 1),
				expected: []string{},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				docs, err := store.Query(ctx, tt.query)
				require.NoError(t, err)
				ids := make([]string, 0, len(docs))
				for _, d := range docs {
					ids = append(ids, d.ID)
				}
				assert.Equal(t, tt.expected, ids)
			})
		}

		n, err := store.Count(ctx, docstore.From(c).Where("active", docstore.OpEqual, true).Limit(1))
		require.NoError(t, err)
		assert.Equal(t, 3, n, "count ignores limit")

		first, ok, err := docstore.FirstAs[item](ctx, store, docstore.From(c).OrderBy("count", docstore.Desc))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "d", first.ID)
	})

	t.Run("transaction_rolls_back_on_error", func(t *testing.T) {
		c := collection()
		boom := errors.New("boom")
		err := store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			require.NoError(t, tx.Create(ctx, c, "a", item{ID: "a"}))
			_, err := tx.Get(ctx, c, "a")
			require.NoError(t, err, "a transaction sees its own writes")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = store.Get(ctx, c, "a")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("transaction_query_sees_own_writes", func(t *testing.T) {
		c := collection()
		require.NoError(t, store.Create(ctx, c, "a", item{ID: "a", Active: true}))
		err := store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			if err := tx.Create(ctx, c, "b", item{ID: "b", Active: true}); err != nil {
				return err
			}
			if err := tx.Delete(ctx, c, "a"); err != nil {
				return err
			}
			docs, err := tx.Query(ctx, docstore.From(c).Where("active", docstore.OpEqual, true))
			if err != nil {
				return err
			}
			require.Len(t, docs, 1)
			assert.Equal(t, "b", docs[0].ID)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("concurrent_decrements_never_oversell", func(t *testing.T) {
		c := collection()
		stock := 3
		require.NoError(t, store.Create(ctx, c, "r", item{ID: "r", Remaining: &stock}))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			sold int
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
					it, err := docstore.GetAs[item](ctx, tx, c, "r")
					if err != nil {
						return err
					}
					if *it.Remaining <= 0 {
						return errSoldOut
					}
					left := *it.Remaining - 1
					it.Remaining = &left
					return tx.Set(ctx, c, "r", it)
				})
				if err == nil {
					mu.Lock()
					sold++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		// Drivers may give up on a transaction that keeps conflicting, so only
		// the accounting is exact.
		assert.LessOrEqual(t, sold, 3)
		assert.Positive(t, sold)
		it, err := docstore.GetAs[item](ctx, store, c, "r")
		require.NoError(t, err)
		assert.Equal(t, 3-sold, *it.Remaining)
	})

	t.Run("invalid_query", func(t *testing.T) {
		_, err := store.Query(ctx, docstore.From(collection()).Where("tags", docstore.OpIn, "python"))
		assert.Error(t, err)
	})
}

var errSoldOut = errors.New("sold out")

func collection() string {
	return "test_" + uuid.NewString()[:8]
}
