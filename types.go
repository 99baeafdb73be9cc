package authgate

import (
	"strings"
	"time"
)

// Role is the closed set of platform roles. Role values are always the
// canonical lowercase form produced by ParseRole; code must never compare
// raw role strings directly.
type Role string

const (
	RoleIndividual  Role = "individual"
	RoleMerchant    Role = "merchant"
	RoleDistributor Role = "distributor"
	RoleDiaspora    Role = "diaspora"
	RoleAdmin       Role = "admin"

	// Platform-internal support roles. Distinct values, but admin-tier:
	// they share the admin route set and satisfy an "admin" requirement.
	RoleRegionalManager Role = "regional_manager"
	RoleSupportAgent    Role = "support_agent"
)

// AllRoles returns every role in the enumeration. The policy table must be
// total over this set.
func AllRoles() []Role {
	return []Role{
		RoleIndividual,
		RoleMerchant,
		RoleDistributor,
		RoleDiaspora,
		RoleAdmin,
		RoleRegionalManager,
		RoleSupportAgent,
	}
}

// ParseRole normalizes a stored role string to its canonical Role value.
// Matching is case-insensitive and tolerates hyphens and surrounding
// whitespace. Unrecognized input returns ok=false: an unknown role is
// treated as no role at all, never as some default.
func ParseRole(s string) (Role, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch Role(normalized) {
	case RoleIndividual, RoleMerchant, RoleDistributor, RoleDiaspora,
		RoleAdmin, RoleRegionalManager, RoleSupportAgent:
		return Role(normalized), true
	}
	return "", false
}

// String returns the canonical role string.
func (r Role) String() string { return string(r) }

// AdminTier reports whether the role maps to the admin route set.
func (r Role) AdminTier() bool {
	return r == RoleAdmin || r == RoleRegionalManager || r == RoleSupportAgent
}

// Principal is an authenticated actor with a resolved role and status.
// It is an immutable snapshot: constructed by the resolver, replaced
// wholesale on refresh, never mutated in place.
type Principal struct {
	ID            string
	Email         string
	Role          Role
	EmailVerified bool
	Active        bool
}

// Claims represents the claims extracted from a verified session token.
type Claims struct {
	Subject       string
	Email         string
	Role          string // raw, not yet normalized
	EmailVerified bool
	ExpiresAt     time.Time
	IssuedAt      time.Time
	Issuer        string
	Extra         map[string]any
}

// Profile is the user-store record backing a Principal. The profile store
// is the source of truth for role, verification, and active status.
type Profile struct {
	UserID        string
	Email         string
	Role          string // raw, normalized by the resolver
	EmailVerified bool
	Active        bool
	LastSeenAt    time.Time
}

// SessionToken is the opaque session handle issued by the identity
// provider. The gate never inspects AccessToken beyond passing it to a
// TokenVerifier.
type SessionToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the token is past its expiry at the given time.
func (t *SessionToken) Expired(now time.Time) bool {
	if t == nil {
		return true
	}
	return !t.ExpiresAt.IsZero() && !t.ExpiresAt.After(now)
}

// SessionRecord is a server-side session row used for revocation checks.
type SessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Revoked   bool      `json:"revoked"`
}
