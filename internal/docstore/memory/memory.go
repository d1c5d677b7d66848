// Package memory is a process-local docstore driver. Transactions are
// serialised by a single lock, which makes every read-check-write sequence
// trivially serializable. It backs the test suites and single-node development.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"
)

type entry struct {
	data      json.RawMessage
	createdAt time.Time
	updatedAt time.Time
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]entry
	now         func() time.Time
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: make(map[string]map[string]entry),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() {}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(s.lookup, collection, id)
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return runQuery(q, s.scan(q.Collection))
}

func (s *Store) Count(ctx context.Context, q docstore.Query) (int, error) {
	docs, err := s.Query(ctx, q.Limit(0).Offset(0).StartAfter(""))
	return len(docs), err
}

func (s *Store) Create(ctx context.Context, collection, id string, v any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Create(ctx, collection, id, v)
	})
}

func (s *Store) Set(ctx context.Context, collection, id string, v any) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(ctx, collection, id, v)
	})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Delete(ctx, collection, id)
	})
}

// RunTransaction holds the store lock for the whole of fn. fn must use tx and
// never call back into the Store itself.
func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{store: s, writes: make(map[string]map[string]*entry)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for collection, docs := range tx.writes {
		target, ok := s.collections[collection]
		if !ok {
			target = make(map[string]entry)
			s.collections[collection] = target
		}
		for id, e := range docs {
			if e == nil {
				delete(target, id)
				continue
			}
			target[id] = *e
		}
	}
	return nil
}

func (s *Store) lookup(collection, id string) (entry, bool) {
	e, ok := s.collections[collection][id]
	return e, ok
}

func (s *Store) get(lookup func(string, string) (entry, bool), collection, id string) (docstore.Document, error) {
	e, ok := lookup(collection, id)
	if !ok {
		return docstore.Document{}, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return toDocument(collection, id, e), nil
}

func (s *Store) scan(collection string) []docstore.Document {
	docs := make([]docstore.Document, 0, len(s.collections[collection]))
	for id, e := range s.collections[collection] {
		docs = append(docs, toDocument(collection, id, e))
	}
	return docs
}

type transaction struct {
	store  *Store
	writes map[string]map[string]*entry
}

func (t *transaction) lookup(collection, id string) (entry, bool) {
	if docs, ok := t.writes[collection]; ok {
		if e, ok := docs[id]; ok {
			if e == nil {
				return entry{}, false
			}
			return *e, true
		}
	}
	return t.store.lookup(collection, id)
}

func (t *transaction) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return t.store.get(t.lookup, collection, id)
}

func (t *transaction) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	merged := make(map[string]docstore.Document)
	for _, doc := range t.store.scan(q.Collection) {
		merged[doc.ID] = doc
	}
	for id, e := range t.writes[q.Collection] {
		if e == nil {
			delete(merged, id)
			continue
		}
		merged[id] = toDocument(q.Collection, id, *e)
	}
	docs := make([]docstore.Document, 0, len(merged))
	for _, doc := range merged {
		docs = append(docs, doc)
	}
	return runQuery(q, docs)
}

func (t *transaction) Count(ctx context.Context, q docstore.Query) (int, error) {
	docs, err := t.Query(ctx, q.Limit(0).Offset(0).StartAfter(""))
	return len(docs), err
}

func (t *transaction) Create(ctx context.Context, collection, id string, v any) error {
	if _, exists := t.lookup(collection, id); exists {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrAlreadyExists)
	}
	return t.Set(ctx, collection, id, v)
}

func (t *transaction) Set(ctx context.Context, collection, id string, v any) error {
	if id == "" {
		return fmt.Errorf("docstore: empty id for %s", collection)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("docstore: failed to encode %s/%s: %w", collection, id, err)
	}

	now := t.store.now()
	e := entry{data: data, createdAt: now, updatedAt: now}
	if prev, ok := t.lookup(collection, id); ok {
		e.createdAt = prev.createdAt
	}
	t.write(collection, id, &e)
	return nil
}

func (t *transaction) Delete(ctx context.Context, collection, id string) error {
	t.write(collection, id, nil)
	return nil
}

func (t *transaction) write(collection, id string, e *entry) {
	docs, ok := t.writes[collection]
	if !ok {
		docs = make(map[string]*entry)
		t.writes[collection] = docs
	}
	docs[id] = e
}

func toDocument(collection, id string, e entry) docstore.Document {
	data := make(json.RawMessage, len(e.data))
	copy(data, e.data)
	return docstore.Document{
		Collection: collection,
		ID:         id,
		Data:       data,
		CreatedAt:  e.createdAt,
		UpdatedAt:  e.updatedAt,
	}
}

type candidate struct {
	doc    docstore.Document
	fields map[string]any
}

func runQuery(q docstore.Query, docs []docstore.Document) ([]docstore.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filters := make([]docstore.Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, fmt.Errorf("docstore: invalid value for %q: %w", f.Field, err)
		}
		filters[i] = docstore.Filter{Field: f.Field, Op: f.Op, Value: v}
	}

	var matched []candidate
	for _, doc := range docs {
		var fields map[string]any
		if err := json.Unmarshal(doc.Data, &fields); err != nil {
			return nil, fmt.Errorf("docstore: corrupt document %s/%s: %w", doc.Collection, doc.ID, err)
		}
		if matchesAll(fields, filters) {
			matched = append(matched, candidate{doc: doc, fields: fields})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		for _, o := range q.Orders {
			a, _ := lookupPath(matched[i].fields, o.Field)
			b, _ := lookupPath(matched[j].fields, o.Field)
			c := orderCompare(a, b)
			if c == 0 {
				continue
			}
			if o.Direction == docstore.Desc {
				return c > 0
			}
			return c < 0
		}
		return matched[i].doc.ID < matched[j].doc.ID
	})

	if q.AfterID != "" {
		for i, c := range matched {
			if c.doc.ID == q.AfterID {
				matched = matched[i+1:]
				break
			}
		}
	}

	if q.OffsetN > 0 {
		if q.OffsetN >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.OffsetN:]
		}
	}
	if q.LimitN > 0 && len(matched) > q.LimitN {
		matched = matched[:q.LimitN]
	}

	out := make([]docstore.Document, len(matched))
	for i, c := range matched {
		out[i] = c.doc
	}
	return out, nil
}

func matchesAll(fields map[string]any, filters []docstore.Filter) bool {
	for _, f := range filters {
		v, present := lookupPath(fields, f.Field)
		if !matches(v, present, f) {
			return false
		}
	}
	return true
}

func matches(v any, present bool, f docstore.Filter) bool {
	switch f.Op {
	case docstore.OpEqual:
		return present && equal(v, f.Value)
	case docstore.OpNotEqual:
		return present && !equal(v, f.Value)
	case docstore.OpLess, docstore.OpLessEqual, docstore.OpGreater, docstore.OpGreaterEqual:
		if !present {
			return false
		}
		c, ok := compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case docstore.OpLess:
			return c < 0
		case docstore.OpLessEqual:
			return c <= 0
		case docstore.OpGreater:
			return c > 0
		default:
			return c >= 0
		}
	case docstore.OpIn:
		if !present {
			return false
		}
		for _, candidate := range asSlice(f.Value) {
			if equal(v, candidate) {
				return true
			}
		}
		return false
	case docstore.OpArrayContains:
		for _, elem := range asSlice(v) {
			if equal(elem, f.Value) {
				return true
			}
		}
		return false
	case docstore.OpArrayContainsAny:
		for _, elem := range asSlice(v) {
			for _, candidate := range asSlice(f.Value) {
				if equal(elem, candidate) {
					return true
				}
			}
		}
		return false
	}
	return false
}

func lookupPath(fields map[string]any, field string) (any, bool) {
	var cur any = fields
	for _, part := range docstore.Path(field) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// normalize maps a Go value onto its JSON representation so it compares like stored data.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(data, &out)
	return out, err
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two scalars of the same kind. Strings holding RFC 3339
// timestamps compare chronologically.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		if at, err := time.Parse(time.RFC3339Nano, av); err == nil {
			if bt, err := time.Parse(time.RFC3339Nano, bv); err == nil {
				return at.Compare(bt), true
			}
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case nil:
		if b == nil {
			return 0, true
		}
	}
	return 0, false
}

// orderCompare is a total order: missing/null values sort after everything,
// values of different kinds sort by kind.
func orderCompare(a, b any) int {
	if c, ok := compare(a, b); ok {
		return c
	}
	ra, rb := kindRank(a), kindRank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return 0
}

func kindRank(v any) int {
	switch v.(type) {
	case bool:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case []any:
		return 3
	case map[string]any:
		return 4
	}
	return 5
}
