// Package postgres implements the token store on Postgres via pgx. The
// consumed flag is flipped with a conditional UPDATE, so the database
// serializes racing confirmations for the same token.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/vending-service/internal/store"
)

// Store is a Postgres-backed store.Store implementation.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Put inserts the token record.
func (s *Store) Put(ctx context.Context, token string, rec store.Record) error {
	const query = `
        INSERT INTO unlock_tokens (token, order_id, door, email, consumed, issued_at, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := s.pool.Exec(ctx, query,
		token,
		rec.OrderID,
		rec.Door,
		rec.Email,
		rec.Consumed,
		rec.IssuedAt,
		rec.ExpiresAt,
	)
	return err
}

// Get loads the token record.
func (s *Store) Get(ctx context.Context, token string) (store.Record, bool, error) {
	const query = `
        SELECT order_id, door, email, consumed, issued_at, expires_at
        FROM unlock_tokens WHERE token=$1`
	var rec store.Record
	err := s.pool.QueryRow(ctx, query, token).Scan(
		&rec.OrderID,
		&rec.Door,
		&rec.Email,
		&rec.Consumed,
		&rec.IssuedAt,
		&rec.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	return rec, true, nil
}

// MarkConsumed flips the consumed flag with a conditional update.
func (s *Store) MarkConsumed(ctx context.Context, token string) error {
	const query = `
        UPDATE unlock_tokens SET consumed=TRUE
        WHERE token=$1 AND NOT consumed`
	tag, err := s.pool.Exec(ctx, query, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No row updated: either the token is gone or it lost the race.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM unlock_tokens WHERE token=$1)`,
		token,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrAlreadyConsumed
}

// Delete removes the token record.
func (s *Store) Delete(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM unlock_tokens WHERE token=$1`, token)
	return err
}

// SweepExpired deletes every record whose expiry has passed.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM unlock_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
