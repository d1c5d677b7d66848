// Package docstore is a small document database abstraction: named
// collections of JSON documents keyed by string ids, Firestore-style queries
// and serializable read-check-write transactions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	// ErrConflict is returned when a transaction kept losing to concurrent writers.
	ErrConflict = errors.New("transaction conflict")
)

// Document is a stored JSON value and its bookkeeping timestamps.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("docstore: failed to decode %s/%s: %w", d.Collection, d.ID, err)
	}
	return nil
}

type Reader interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Count(ctx context.Context, q Query) (int, error)
}

type Writer interface {
	// Create stores v under id and fails with ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, collection, id string, v any) error
	// Set stores v under id, replacing any previous document.
	Set(ctx context.Context, collection, id string, v any) error
	// Delete removes the document; deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
}

// Tx sees its own writes; nothing is visible to others until the transaction commits.
type Tx interface {
	Reader
	Writer
}

type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	Reader
	Writer
	// RunTransaction runs fn as one serializable unit. All writes made through tx
	// commit together when fn returns nil and are discarded otherwise. fn may be
	// invoked more than once when the driver retries a conflict, so it must not
	// have side effects outside tx.
	RunTransaction(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close()
}

// GetAs fetches and decodes the document into a T.
func GetAs[T any](ctx context.Context, r Reader, collection, id string) (T, error) {
	var v T
	doc, err := r.Get(ctx, collection, id)
	if err != nil {
		return v, err
	}
	err = doc.Decode(&v)
	return v, err
}

// QueryAs runs q and decodes every result into a T.
func QueryAs[T any](ctx context.Context, r Reader, q Query) ([]T, error) {
	docs, err := r.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FirstAs runs q with limit 1 and reports whether a document matched.
func FirstAs[T any](ctx context.Context, r Reader, q Query) (T, bool, error) {
	var zero T
	items, err := QueryAs[T](ctx, r, q.Limit(1))
	if err != nil || len(items) == 0 {
		return zero, false, err
	}
	return items[0], true, nil
}

// Exists reports whether collection/id is present.
func Exists(ctx context.Context, r Reader, collection, id string) (bool, error) {
	_, err := r.Get(ctx, collection, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
