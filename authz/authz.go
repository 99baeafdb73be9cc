// Package authz implements the authorization decision engine: given a
// principal (or its absence) and a requested route, it computes a single
// Verdict: allow, redirect, or deny.
//
// Decide is a pure function over its inputs. Verdicts are computed fresh
// for every check and never cached across principal changes, so a role or
// status change takes effect on the next evaluation.
package authz

import (
	authgate "github.com/zawadipay/authgate-go"
	"github.com/zawadipay/authgate-go/policy"
)

// Kind discriminates Verdict variants.
type Kind int

const (
	// KindAllow grants access to the protected route.
	KindAllow Kind = iota

	// KindRedirect sends the caller to Verdict.Target instead.
	KindRedirect

	// KindDeny blocks access with Verdict.Reason; no redirect applies.
	KindDeny
)

// Reason explains a denial. Denials are ordinary control-flow values
// surfaced as labeled screens, never errors.
type Reason string

const (
	// ReasonAccountInactive: principal resolved but deactivated.
	ReasonAccountInactive Reason = "account_inactive"

	// ReasonEmailNotVerified: verification required but the principal's
	// email is unverified.
	ReasonEmailNotVerified Reason = "email_not_verified"
)

// Verdict is the outcome of one authorization check. Verdicts are
// comparable values; the guard relies on equality to deduplicate
// navigation side effects.
type Verdict struct {
	Kind   Kind
	Target string // redirect target, set only for KindRedirect
	Reason Reason // denial reason, set only for KindDeny
}

// Allow grants access.
func Allow() Verdict { return Verdict{Kind: KindAllow} }

// RedirectTo sends the caller to the given route.
func RedirectTo(target string) Verdict {
	return Verdict{Kind: KindRedirect, Target: target}
}

// Deny blocks access for the given reason.
func Deny(reason Reason) Verdict {
	return Verdict{Kind: KindDeny, Reason: reason}
}

// Check describes one protected route's requirements.
type Check struct {
	// RequiredRoles restricts access to the listed roles. Entries are
	// normalized case-insensitively; a nil or empty list means "no role
	// restriction" and falls back to the path-prefix check. It never
	// means "no role satisfies this".
	RequiredRoles []string

	// RequireVerifiedEmail additionally gates on the verified-email flag.
	RequireVerifiedEmail bool

	// Path is the requested route, consulted only when RequiredRoles is
	// empty.
	Path string
}

// Engine evaluates authorization checks against a route policy table.
type Engine struct {
	table *policy.Table
}

// NewEngine creates a decision engine over the given policy table.
func NewEngine(table *policy.Table) *Engine {
	return &Engine{table: table}
}

// Table returns the engine's policy table.
func (e *Engine) Table() *policy.Table { return e.table }

// Decide computes the verdict for a principal requesting a route. The
// checks run in a fixed order; the order is what prevents redirect loops:
//
//  1. no principal            → redirect to sign-in
//  2. inactive account        → deny
//  3. unverified email        → deny (only when the check requires it)
//  4. required-role mismatch  → redirect to the principal's default route
//  5. path outside the role's prefixes (no required roles) → redirect to
//     the principal's default route
//  6. otherwise               → allow
func (e *Engine) Decide(p *authgate.Principal, chk Check) Verdict {
	if p == nil {
		return RedirectTo(e.table.SignInRoute())
	}
	if !p.Active {
		return Deny(ReasonAccountInactive)
	}
	if chk.RequireVerifiedEmail && !p.EmailVerified {
		return Deny(ReasonEmailNotVerified)
	}

	if len(chk.RequiredRoles) > 0 {
		if !roleSatisfiesAny(p.Role, chk.RequiredRoles) {
			return RedirectTo(e.table.DefaultRoute(p.Role))
		}
		return Allow()
	}

	if !e.table.Allows(p.Role, chk.Path) {
		return RedirectTo(e.table.DefaultRoute(p.Role))
	}
	return Allow()
}

// roleSatisfiesAny normalizes each required role before comparison; stored
// roles and declared allow-lists have historically disagreed on casing.
// Entries that do not parse to a known role can never match.
func roleSatisfiesAny(have authgate.Role, required []string) bool {
	for _, raw := range required {
		want, ok := authgate.ParseRole(raw)
		if !ok {
			continue
		}
		if have == want {
			return true
		}
		// Support roles are admin-tier for routing purposes.
		if want == authgate.RoleAdmin && have.AdminTier() {
			return true
		}
	}
	return false
}
