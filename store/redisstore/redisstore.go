// Package redisstore implements authgate.SessionStore on Redis. Session
// records are JSON payloads under a "session:" key prefix with a TTL
// derived from the record's expiry, so revoked and expired sessions age
// out without a sweeper.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	authgate "github.com/zawadipay/authgate-go"
)

const keyPrefix = "session:"

// Store is a Redis-backed session store.
type Store struct {
	client *redislib.Client
	ttl    time.Duration
}

// compile-time check
var _ authgate.SessionStore = (*Store)(nil)

// New creates a Store. ttl is the fallback lifetime for records without an
// expiry; it defaults to one hour.
func New(client *redislib.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// Save writes a session record. A record without an ID is assigned one.
func (s *Store) Save(ctx context.Context, rec *authgate.SessionRecord) error {
	if rec == nil || rec.UserID == "" {
		return fmt.Errorf("authgate/redisstore: record requires a user ID")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.ExpiresAt.Before(rec.CreatedAt) {
		rec.ExpiresAt = rec.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("authgate/redisstore: encode record: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := s.client.Set(ctx, s.key(rec.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("authgate/redisstore: save: %w", err)
	}
	return nil
}

// Get returns a session record by ID.
func (s *Store) Get(ctx context.Context, id string) (*authgate.SessionRecord, error) {
	result, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, authgate.ErrSessionNotFound
		}
		return nil, fmt.Errorf("authgate/redisstore: get: %w", err)
	}

	var rec authgate.SessionRecord
	if err := json.Unmarshal([]byte(result), &rec); err != nil {
		return nil, fmt.Errorf("authgate/redisstore: decode record: %w", err)
	}
	return &rec, nil
}

// Revoke marks a session record revoked while keeping it readable until
// its natural expiry, so gate checks can distinguish "revoked" from
// "never existed".
func (s *Store) Revoke(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.Revoked = true

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("authgate/redisstore: encode record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), payload, redislib.KeepTTL).Err(); err != nil {
		return fmt.Errorf("authgate/redisstore: revoke: %w", err)
	}
	return nil
}

// Delete removes a session record.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("authgate/redisstore: delete: %w", err)
	}
	return nil
}

func (s *Store) key(id string) string {
	return keyPrefix + id
}
