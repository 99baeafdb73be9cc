package authgate

import "context"

// TokenVerifier verifies session access tokens and extracts claims.
// Implementations: jwks/ (JWT via JWKS), fake/ (testing).
type TokenVerifier interface {
	// Verify validates the token and returns the extracted claims.
	Verify(ctx context.Context, token string) (*Claims, error)
}

// IdentityProvider is the hosted credential-verification and session
// service. Session tokens are opaque to the gate; their lifetime is owned
// entirely by the provider.
type IdentityProvider interface {
	// VerifyCredentials checks an email/secret pair and issues a session
	// token. Rejected credentials return ErrInvalidCredentials.
	VerifyCredentials(ctx context.Context, email, secret string) (*SessionToken, error)

	// CurrentSession returns the provider's current session token, or
	// (nil, nil) when no session exists. An error means the provider was
	// unreachable, which is distinct from being signed out.
	CurrentSession(ctx context.Context) (*SessionToken, error)

	// Refresh exchanges a refresh token for a fresh session token.
	Refresh(ctx context.Context, refreshToken string) (*SessionToken, error)

	// InvalidateSession revokes the session behind the given access token.
	InvalidateSession(ctx context.Context, accessToken string) error

	// OnSessionChange registers a callback fired whenever the provider's
	// session changes externally (refresh, revocation, expiry). The token
	// is nil when the session ended. The returned function cancels the
	// registration.
	OnSessionChange(fn func(*SessionToken)) (cancel func())
}

// ProfileStore looks up the user-store record backing a principal.
type ProfileStore interface {
	// FindProfile returns the profile for a principal ID, or
	// ErrProfileNotFound.
	FindProfile(ctx context.Context, principalID string) (*Profile, error)

	// TouchLastSeen records activity for a principal. Callers treat this
	// as fire-and-forget: failures are logged and ignored, never retried.
	TouchLastSeen(ctx context.Context, principalID string) error
}

// SessionStore persists server-side session records for revocation checks.
// Implementations: store/redisstore (Redis), fake/ (testing).
type SessionStore interface {
	// Save writes a session record.
	Save(ctx context.Context, rec *SessionRecord) error

	// Get returns a session record by ID, or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*SessionRecord, error)

	// Revoke marks a session record as revoked without deleting it.
	Revoke(ctx context.Context, id string) error

	// Delete removes a session record.
	Delete(ctx context.Context, id string) error
}
