// Package ginmw provides Gin HTTP middleware for the gate.
//
// Auth resolves the bearer token to a Principal and stores it in the Gin
// context. Gate evaluates the route policy for the resolved principal and
// enforces the verdict: redirects become 303 responses, denials 403.
package ginmw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	authgate "github.com/zawadipay/authgate-go"
	"github.com/zawadipay/authgate-go/audit"
	"github.com/zawadipay/authgate-go/authz"
	"github.com/zawadipay/authgate-go/metrics"
	"github.com/zawadipay/authgate-go/resolver"
)

// Context keys for storing gate data in gin.Context.
const (
	KeyPrincipal = "authgate_principal"
	KeyUserID    = "authgate_user_id"
	KeyRole      = "authgate_role"
)

// AuthOption configures Auth middleware behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedPaths map[string]bool
	sessions      authgate.SessionStore
	signInRoute   string
}

// WithExcludedPaths sets paths that skip authentication (e.g. health checks).
func WithExcludedPaths(paths ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, p := range paths {
			cfg.excludedPaths[p] = true
		}
	}
}

// WithSessionStore enables server-side revocation checks: requests carrying
// an X-Session-Id header are rejected when the record is revoked or gone.
func WithSessionStore(s authgate.SessionStore) AuthOption {
	return func(cfg *authConfig) { cfg.sessions = s }
}

// WithSignInRoute sets the route browser requests are redirected to when
// unauthenticated. Default: "/auth/signin".
func WithSignInRoute(route string) AuthOption {
	return func(cfg *authConfig) { cfg.signInRoute = route }
}

// Auth returns Gin middleware that resolves the bearer token to a Principal
// via the resolver and stores it in the context.
//
// Unresolvable requests get 401 with a JSON body, except browser requests
// (Accept: text/html) which get a 303 redirect to the sign-in route. An
// unresolvable token and a missing one are handled identically.
func Auth(res *resolver.Resolver, opts ...AuthOption) gin.HandlerFunc {
	cfg := &authConfig{
		excludedPaths: make(map[string]bool),
		signInRoute:   "/auth/signin",
	}
	for _, o := range opts {
		o(cfg)
	}

	return func(c *gin.Context) {
		if cfg.excludedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		token := extractBearerToken(c.Request)
		p := res.Resolve(c.Request.Context(), token)
		if p == nil {
			rejectUnauthenticated(c, cfg.signInRoute)
			return
		}

		if cfg.sessions != nil {
			if id := c.GetHeader("X-Session-Id"); id != "" {
				rec, err := cfg.sessions.Get(c.Request.Context(), id)
				if err != nil || rec.Revoked {
					rejectUnauthenticated(c, cfg.signInRoute)
					return
				}
			}
		}

		c.Set(KeyPrincipal, p)
		c.Set(KeyUserID, p.ID)
		c.Set(KeyRole, string(p.Role))
		c.Request = c.Request.WithContext(
			authgate.WithPrincipal(c.Request.Context(), p))

		c.Next()
	}
}

// Gate returns Gin middleware that evaluates the route policy for the
// resolved principal. Requires Auth to run first; without it every request
// is treated as unauthenticated.
//
// Verdicts map to HTTP as follows: allow passes through, redirect becomes
// 303 See Other, deny becomes 403 with the reason in the body.
func Gate(engine *authz.Engine, requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)

		verdict := engine.Decide(p, authz.Check{
			RequiredRoles: requiredRoles,
			Path:          c.Request.URL.Path,
		})
		enforce(c, verdict)
	}
}

// GateVerified is Gate with the verified-email requirement switched on.
func GateVerified(engine *authz.Engine, requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)

		verdict := engine.Decide(p, authz.Check{
			RequiredRoles:        requiredRoles,
			RequireVerifiedEmail: true,
			Path:                 c.Request.URL.Path,
		})
		enforce(c, verdict)
	}
}

func enforce(c *gin.Context, v authz.Verdict) {
	switch v.Kind {
	case authz.KindAllow:
		c.Next()
	case authz.KindRedirect:
		c.Redirect(http.StatusSeeOther, v.Target)
		c.Abort()
	case authz.KindDeny:
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": string(v.Reason)})
	}
}

func rejectUnauthenticated(c *gin.Context, signInRoute string) {
	if wantsHTML(c.Request) {
		c.Redirect(http.StatusSeeOther, signInRoute)
		c.Abort()
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
}

// Observe returns middleware that records gate outcomes to metrics and the
// audit log. Register it before Auth and Gate so it sees the final response
// status. Either argument may be nil.
//
// Only statuses the gate itself produces are recorded: 303 as a redirect,
// 401 and 403 as denials, and 2xx as an allow. Handler errors and missing
// routes are not gate decisions and leave the counters untouched.
func Observe(m *metrics.Metrics, log *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		var verdict string
		status := c.Writer.Status()
		switch {
		case status == http.StatusSeeOther:
			verdict = "redirect"
			if m != nil {
				targetKind := "default_route"
				if c.Writer.Header().Get("Location") == "" || GetPrincipal(c) == nil {
					targetKind = "sign_in"
				}
				m.RecordRedirect(targetKind)
			}
		case status == http.StatusForbidden:
			verdict = "deny"
			if m != nil {
				m.RecordDenial("forbidden")
			}
		case status == http.StatusUnauthorized:
			verdict = "deny"
		case status >= 200 && status < 300:
			verdict = "allow"
		default:
			return
		}
		if m != nil {
			m.RecordDecision(verdict)
		}

		if log != nil {
			log.Log(audit.Event{
				Action:    "decision",
				Verdict:   verdict,
				UserID:    GetUserID(c),
				Role:      GetRole(c),
				Path:      c.Request.URL.Path,
				Target:    c.Writer.Header().Get("Location"),
				IP:        c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			})
		}
	}
}

// --- Context helpers ---

// GetPrincipal returns the resolved principal, or nil when unauthenticated.
func GetPrincipal(c *gin.Context) *authgate.Principal {
	v, _ := c.Get(KeyPrincipal)
	p, _ := v.(*authgate.Principal)
	return p
}

// GetUserID returns the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string {
	v, _ := c.Get(KeyUserID)
	s, _ := v.(string)
	return s
}

// GetRole returns the principal's role from the Gin context.
func GetRole(c *gin.Context) string {
	v, _ := c.Get(KeyRole)
	s, _ := v.(string)
	return s
}

// --- internal helpers ---

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
