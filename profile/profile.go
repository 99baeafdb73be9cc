// Package profile provides a ProfileStore implementation with a pluggable
// backend and input validation.
package profile

import (
	"context"
	"fmt"

	authgate "github.com/zawadipay/authgate-go"
)

// Backend defines the contract for pluggable profile store backends
// (Postgres, REST, etc.).
type Backend interface {
	// FindProfile returns the profile for a principal ID.
	FindProfile(ctx context.Context, principalID string) (*authgate.Profile, error)

	// TouchLastSeen records activity for a principal.
	TouchLastSeen(ctx context.Context, principalID string) error
}

// Service implements authgate.ProfileStore with a configurable backend.
type Service struct {
	backend Backend
}

// compile-time check
var _ authgate.ProfileStore = (*Service)(nil)

// New creates a new profile service with the given backend.
func New(backend Backend) *Service {
	return &Service{backend: backend}
}

// FindProfile returns the profile for a principal ID.
func (s *Service) FindProfile(ctx context.Context, principalID string) (*authgate.Profile, error) {
	if principalID == "" {
		return nil, fmt.Errorf("authgate/profile: principalID cannot be empty")
	}

	p, err := s.backend.FindProfile(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("authgate/profile: %w", err)
	}
	return p, nil
}

// TouchLastSeen records activity for a principal.
func (s *Service) TouchLastSeen(ctx context.Context, principalID string) error {
	if principalID == "" {
		return fmt.Errorf("authgate/profile: principalID cannot be empty")
	}

	if err := s.backend.TouchLastSeen(ctx, principalID); err != nil {
		return fmt.Errorf("authgate/profile: %w", err)
	}
	return nil
}
