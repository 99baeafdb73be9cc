// Package fake provides in-memory implementations of all authgate
// interfaces for testing.
//
// Use fake.NewClient() in unit tests to avoid network calls and external
// dependencies. The access token string doubles as the user ID.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	authgate "github.com/zawadipay/authgate-go"
)

// Option configures the fake client.
type Option func(*state)

type state struct {
	mu        sync.RWMutex
	profiles  map[string]*authgate.Profile // userID → profile
	passwords map[string]credential        // email → credential
	sessions  map[string]*authgate.SessionRecord
	current   *authgate.SessionToken
	down      bool
}

type credential struct {
	secret string
	userID string
}

// WithUser adds a fake user profile.
func WithUser(id, email, role string, verified, active bool) Option {
	return func(s *state) {
		s.profiles[id] = &authgate.Profile{
			UserID:        id,
			Email:         email,
			Role:          role,
			EmailVerified: verified,
			Active:        active,
		}
	}
}

// WithPassword registers a sign-in credential for a user.
func WithPassword(email, secret, userID string) Option {
	return func(s *state) {
		s.passwords[email] = credential{secret: secret, userID: userID}
	}
}

// WithCurrentSession makes the provider report an existing session for the
// given user (access token == userID).
func WithCurrentSession(userID string) Option {
	return func(s *state) {
		s.current = &authgate.SessionToken{
			AccessToken:  userID,
			RefreshToken: "refresh-" + userID,
			ExpiresAt:    time.Now().Add(1 * time.Hour),
		}
	}
}

// WithProviderDown makes the provider unreachable: session lookups and
// credential checks fail with an error.
func WithProviderDown() Option {
	return func(s *state) {
		s.down = true
	}
}

// NewClient creates an *authgate.Client with all services wired to
// in-memory fakes. The returned Provider supports external session-change
// simulation; see Provider.EndSession.
func NewClient(opts ...Option) *authgate.Client {
	s := &state{
		profiles:  make(map[string]*authgate.Profile),
		passwords: make(map[string]credential),
		sessions:  make(map[string]*authgate.SessionRecord),
	}
	for _, o := range opts {
		o(s)
	}

	c, _ := authgate.NewClient(
		authgate.Config{Endpoint: "fake://localhost"},
		authgate.WithIdentityProvider(&Provider{s: s, listeners: make(map[uint64]func(*authgate.SessionToken))}),
		authgate.WithTokenVerifier(&fakeVerifier{s: s}),
		authgate.WithProfileStore(&fakeProfileStore{s: s}),
		authgate.WithSessionStore(&fakeSessionStore{s: s}),
	)
	return c
}

var (
	_ authgate.IdentityProvider = (*Provider)(nil)
	_ authgate.TokenVerifier    = (*fakeVerifier)(nil)
	_ authgate.ProfileStore     = (*fakeProfileStore)(nil)
	_ authgate.SessionStore     = (*fakeSessionStore)(nil)
)

// --- IdentityProvider ---

// Provider is the fake identity provider. Tests may type-assert
// client.Provider() to *fake.Provider to simulate external events.
type Provider struct {
	s *state

	lmu       sync.Mutex
	listeners map[uint64]func(*authgate.SessionToken)
	nextID    uint64
}

// VerifyCredentials checks a registered email/secret pair.
func (p *Provider) VerifyCredentials(_ context.Context, email, secret string) (*authgate.SessionToken, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if p.s.down {
		return nil, fmt.Errorf("authgate/fake: provider unreachable")
	}
	cred, ok := p.s.passwords[email]
	if !ok || cred.secret != secret {
		return nil, authgate.ErrInvalidCredentials
	}

	token := &authgate.SessionToken{
		AccessToken:  cred.userID,
		RefreshToken: "refresh-" + cred.userID,
		ExpiresAt:    time.Now().Add(1 * time.Hour),
	}
	p.s.current = token
	return token, nil
}

// CurrentSession returns the fake's current session token.
func (p *Provider) CurrentSession(_ context.Context) (*authgate.SessionToken, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	if p.s.down {
		return nil, fmt.Errorf("authgate/fake: provider unreachable")
	}
	return p.s.current, nil
}

// Refresh reissues a token for the same user.
func (p *Provider) Refresh(_ context.Context, refreshToken string) (*authgate.SessionToken, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if p.s.down {
		return nil, fmt.Errorf("authgate/fake: provider unreachable")
	}
	if p.s.current == nil || p.s.current.RefreshToken != refreshToken {
		return nil, authgate.ErrNoSession
	}
	token := &authgate.SessionToken{
		AccessToken:  p.s.current.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(1 * time.Hour),
	}
	p.s.current = token
	return token, nil
}

// InvalidateSession clears the current session and notifies listeners.
func (p *Provider) InvalidateSession(_ context.Context, _ string) error {
	p.s.mu.Lock()
	p.s.current = nil
	p.s.mu.Unlock()

	p.notify(nil)
	return nil
}

// OnSessionChange registers a session-change callback.
func (p *Provider) OnSessionChange(fn func(*authgate.SessionToken)) (cancel func()) {
	p.lmu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.lmu.Unlock()

	return func() {
		p.lmu.Lock()
		delete(p.listeners, id)
		p.lmu.Unlock()
	}
}

// EndSession simulates a server-side expiry: the session vanishes and
// listeners are notified with nil.
func (p *Provider) EndSession() {
	p.s.mu.Lock()
	p.s.current = nil
	p.s.mu.Unlock()

	p.notify(nil)
}

// SetDown toggles provider reachability.
func (p *Provider) SetDown(down bool) {
	p.s.mu.Lock()
	p.s.down = down
	p.s.mu.Unlock()
}

func (p *Provider) notify(token *authgate.SessionToken) {
	p.lmu.Lock()
	fns := make([]func(*authgate.SessionToken), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.lmu.Unlock()

	for _, fn := range fns {
		fn(token)
	}
}

// --- TokenVerifier ---

type fakeVerifier struct{ s *state }

func (f *fakeVerifier) Verify(_ context.Context, token string) (*authgate.Claims, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	// Treat the token string as a userID for simplicity
	p, ok := f.s.profiles[token]
	if !ok {
		return nil, fmt.Errorf("authgate/fake: unknown token %q", token)
	}

	return &authgate.Claims{
		Subject:       p.UserID,
		Email:         p.Email,
		Role:          p.Role,
		EmailVerified: p.EmailVerified,
		ExpiresAt:     time.Now().Add(1 * time.Hour),
		IssuedAt:      time.Now(),
		Issuer:        "fake",
	}, nil
}

// --- ProfileStore ---

type fakeProfileStore struct{ s *state }

func (f *fakeProfileStore) FindProfile(_ context.Context, principalID string) (*authgate.Profile, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	p, ok := f.s.profiles[principalID]
	if !ok {
		return nil, authgate.ErrProfileNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProfileStore) TouchLastSeen(_ context.Context, principalID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if p, ok := f.s.profiles[principalID]; ok {
		p.LastSeenAt = time.Now()
	}
	return nil
}

// --- SessionStore ---

type fakeSessionStore struct{ s *state }

func (f *fakeSessionStore) Save(_ context.Context, rec *authgate.SessionRecord) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	if rec == nil || rec.ID == "" {
		return fmt.Errorf("authgate/fake: record requires an ID")
	}
	copied := *rec
	f.s.sessions[rec.ID] = &copied
	return nil
}

func (f *fakeSessionStore) Get(_ context.Context, id string) (*authgate.SessionRecord, error) {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()

	rec, ok := f.s.sessions[id]
	if !ok {
		return nil, authgate.ErrSessionNotFound
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeSessionStore) Revoke(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	rec, ok := f.s.sessions[id]
	if !ok {
		return authgate.ErrSessionNotFound
	}
	rec.Revoked = true
	return nil
}

func (f *fakeSessionStore) Delete(_ context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()

	delete(f.s.sessions, id)
	return nil
}
