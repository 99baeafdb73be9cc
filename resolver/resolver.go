// Package resolver turns an opaque session token into a Principal.
//
// Resolution fails closed: any verification error, missing profile, or
// unrecognized role string yields no principal at all. For security
// purposes an unresolvable session is indistinguishable from being signed
// out, so failures are logged and swallowed rather than surfaced.
package resolver

import (
	"context"
	"log/slog"
	"time"

	authgate "github.com/zawadipay/authgate-go"
)

// Resolver resolves session tokens against a token verifier and the
// profile store.
type Resolver struct {
	verifier     authgate.TokenVerifier
	profiles     authgate.ProfileStore
	logger       *slog.Logger
	touchTimeout time.Duration
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithTouchTimeout bounds the fire-and-forget last-seen write.
func WithTouchTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.touchTimeout = d }
}

// New creates a Resolver.
func New(verifier authgate.TokenVerifier, profiles authgate.ProfileStore, opts ...Option) *Resolver {
	r := &Resolver{
		verifier:     verifier,
		profiles:     profiles,
		logger:       slog.Default(),
		touchTimeout: authgate.DefaultTouchTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve resolves an access token to a Principal, or nil when there is
// none. It never returns an error: lookup failures are logged and treated
// as "not signed in".
//
// The profile store is the source of truth for role, verification, and
// active status; claims only supply the email when the profile lacks one.
// A successful resolve triggers at most one last-seen write, which runs in
// the background and is never retried.
func (r *Resolver) Resolve(ctx context.Context, accessToken string) *authgate.Principal {
	if accessToken == "" {
		return nil
	}

	claims, err := r.verifier.Verify(ctx, accessToken)
	if err != nil {
		r.logger.Debug("token verification failed", "error", err)
		return nil
	}

	profile, err := r.profiles.FindProfile(ctx, claims.Subject)
	if err != nil {
		r.logger.Warn("profile lookup failed", "user_id", claims.Subject, "error", err)
		return nil
	}

	role, ok := authgate.ParseRole(profile.Role)
	if !ok {
		// Fail closed: an unrecognized role grants nothing.
		r.logger.Warn("unrecognized role on profile", "user_id", profile.UserID, "role", profile.Role)
		return nil
	}

	r.touchLastSeen(profile.UserID)

	email := profile.Email
	if email == "" {
		email = claims.Email
	}
	return &authgate.Principal{
		ID:            profile.UserID,
		Email:         email,
		Role:          role,
		EmailVerified: profile.EmailVerified,
		Active:        profile.Active,
	}
}

// touchLastSeen records activity in the background. One attempt with its
// own timeout; this write must never block resolution.
func (r *Resolver) touchLastSeen(userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.touchTimeout)
		defer cancel()

		if err := r.profiles.TouchLastSeen(ctx, userID); err != nil {
			r.logger.Debug("last-seen touch failed", "user_id", userID, "error", err)
		}
	}()
}
