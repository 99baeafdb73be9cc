package authgate

import "errors"

// Sentinel errors returned by collaborator implementations. Ordinary
// authorization outcomes (redirects, denials) are authz.Verdict values,
// never errors.
var (
	// ErrInvalidCredentials is returned by IdentityProvider.VerifyCredentials
	// when the email/secret pair is rejected.
	ErrInvalidCredentials = errors.New("authgate: invalid credentials")

	// ErrNoSession is returned when no session exists for the caller.
	ErrNoSession = errors.New("authgate: no active session")

	// ErrProfileNotFound is returned by ProfileStore.FindProfile when the
	// principal has no profile row.
	ErrProfileNotFound = errors.New("authgate: profile not found")

	// ErrSessionNotFound is returned by SessionStore.Get for unknown IDs.
	ErrSessionNotFound = errors.New("authgate: session not found")
)
