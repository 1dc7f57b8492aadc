// Package postgres implements the store interfaces on PostgreSQL via
// pgx. Data-row payloads live in a single jsonb column; referential
// cascades mirror the logical delete contract.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jw6ventures/contactd/internal/metrics"
	"github.com/jw6ventures/contactd/internal/store"
)

// Store opens transactions over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a store to the database behind dsn.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool; the caller keeps ownership.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for migrations and health probes.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	start := time.Now()
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	metrics.ObserveDBLatency("begin", start)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error {
	start := time.Now()
	err := t.tx.Commit(ctx)
	metrics.ObserveDBLatency("commit", start)
	return err
}

func (t *pgTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// mapErr converts driver-level not-found into the store sentinel.
func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// nullTime maps the zero time to SQL NULL and back.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// accountCols splits an optional account into its nullable columns.
func accountCols(a *store.Account) (name, typ *string) {
	if a == nil {
		return nil, nil
	}
	return &a.Name, &a.Type
}

func accountFromCols(name, typ *string) *store.Account {
	if name == nil && typ == nil {
		return nil
	}
	a := &store.Account{}
	if name != nil {
		a.Name = *name
	}
	if typ != nil {
		a.Type = *typ
	}
	return a
}
