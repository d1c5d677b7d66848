// Package postgres stores docstore collections in a single jsonb table.
// Transactions run at SERIALIZABLE isolation and are retried on
// serialization failures.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dnacommunity/backend/internal/docstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxTxAttempts = 5

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ docstore.Store = (*Store)(nil)

func Connect(ctx context.Context, logger *slog.Logger, connString string, maxConns int) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database configuration: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create database pool: %w", err)
	}

	return &Store{Pool: pool, logger: logger}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return get(ctx, s.Pool, collection, id, false)
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return query(ctx, s.Pool, q)
}

func (s *Store) Count(ctx context.Context, q docstore.Query) (int, error) {
	return count(ctx, s.Pool, q)
}

func (s *Store) Create(ctx context.Context, collection, id string, v any) error {
	return create(ctx, s.Pool, collection, id, v)
}

func (s *Store) Set(ctx context.Context, collection, id string, v any) error {
	return set(ctx, s.Pool, collection, id, v)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return del(ctx, s.Pool, collection, id)
}

func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}

		s.logger.Debug("Retrying conflicting transaction", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 5 * time.Millisecond):
		}
	}
	return docstore.ErrConflict
}

func (s *Store) runOnce(ctx context.Context, fn docstore.TxFunc) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("database: failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Error("Failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(ctx, &transaction{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("database: failed to commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// serialization_failure, deadlock_detected, unique_violation from a
		// concurrent insert of the same key
		case "40001", "40P01", "23505":
			return true
		}
	}
	return false
}

type transaction struct {
	tx pgx.Tx
}

func (t *transaction) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return get(ctx, t.tx, collection, id, true)
}

func (t *transaction) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return query(ctx, t.tx, q)
}

func (t *transaction) Count(ctx context.Context, q docstore.Query) (int, error) {
	return count(ctx, t.tx, q)
}

func (t *transaction) Create(ctx context.Context, collection, id string, v any) error {
	return create(ctx, t.tx, collection, id, v)
}

func (t *transaction) Set(ctx context.Context, collection, id string, v any) error {
	return set(ctx, t.tx, collection, id, v)
}

func (t *transaction) Delete(ctx context.Context, collection, id string) error {
	return del(ctx, t.tx, collection, id)
}

func get(ctx context.Context, db querier, collection, id string, forUpdate bool) (docstore.Document, error) {
	sql := `SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}

	doc := docstore.Document{Collection: collection}
	err := db.QueryRow(ctx, sql, collection, id).Scan(&doc.ID, &doc.Data, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return doc, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
		}
		return doc, fmt.Errorf("database: failed to get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func query(ctx context.Context, db querier, q docstore.Query) ([]docstore.Document, error) {
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("database: failed to query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		doc := docstore.Document{Collection: q.Collection}
		if err := rows.Scan(&doc.ID, &doc.Data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("database: failed to scan %s: %w", q.Collection, err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: failed to iterate %s: %w", q.Collection, err)
	}
	return docs, nil
}

func count(ctx context.Context, db querier, q docstore.Query) (int, error) {
	sql, args, err := buildCount(q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("database: failed to count %s: %w", q.Collection, err)
	}
	return n, nil
}

func create(ctx context.Context, db querier, collection, id string, v any) error {
	data, err := encode(collection, id, v)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES ($1, $2, $3, now(), now()) ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, data)
	if err != nil {
		return fmt.Errorf("database: failed to insert %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrAlreadyExists)
	}
	return nil
}

func set(ctx context.Context, db querier, collection, id string, v any) error {
	data, err := encode(collection, id, v)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, `INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES ($1, $2, $3, now(), now()) ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, data); err != nil {
		return fmt.Errorf("database: failed to upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func del(ctx context.Context, db querier, collection, id string) error {
	if _, err := db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return fmt.Errorf("database: failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func encode(collection, id string, v any) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("docstore: empty id for %s", collection)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: failed to encode %s/%s: %w", collection, id, err)
	}
	return data, nil
}
