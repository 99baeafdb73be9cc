// Package pgstore implements authgate.ProfileStore on PostgreSQL via pgx.
// It consumes the platform's existing profiles table; it owns no schema.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	authgate "github.com/zawadipay/authgate-go"
)

// Store is a Postgres-backed profile store.
type Store struct {
	pool *pgxpool.Pool
}

// compile-time check
var _ authgate.ProfileStore = (*Store)(nil)

// New creates a Store over an existing connection pool. The pool's
// lifetime belongs to the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FindProfile returns the profile row for a principal ID.
func (s *Store) FindProfile(ctx context.Context, principalID string) (*authgate.Profile, error) {
	const query = `
		SELECT user_id, email, role, email_verified, is_active, last_seen_at
		FROM profiles
		WHERE user_id = $1`

	var (
		p        authgate.Profile
		lastSeen *time.Time // nullable for profiles never seen
	)
	err := s.pool.QueryRow(ctx, query, principalID).Scan(
		&p.UserID, &p.Email, &p.Role, &p.EmailVerified, &p.Active, &lastSeen,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authgate.ErrProfileNotFound
		}
		return nil, fmt.Errorf("authgate/pgstore: find profile: %w", err)
	}
	if lastSeen != nil {
		p.LastSeenAt = *lastSeen
	}
	return &p, nil
}

// TouchLastSeen records activity for a principal. Callers treat this as
// fire-and-forget; an unknown principal is not an error.
func (s *Store) TouchLastSeen(ctx context.Context, principalID string) error {
	const query = `UPDATE profiles SET last_seen_at = now() WHERE user_id = $1`

	if _, err := s.pool.Exec(ctx, query, principalID); err != nil {
		return fmt.Errorf("authgate/pgstore: touch last seen: %w", err)
	}
	return nil
}
