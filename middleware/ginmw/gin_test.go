package ginmw

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	authgate "github.com/zawadipay/authgate-go"
	"github.com/zawadipay/authgate-go/audit"
	"github.com/zawadipay/authgate-go/authz"
	"github.com/zawadipay/authgate-go/policy"
	"github.com/zawadipay/authgate-go/resolver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockVerifier treats the token string as a user ID.
type mockVerifier struct {
	users map[string]*authgate.Profile
}

func (m *mockVerifier) Verify(_ context.Context, token string) (*authgate.Claims, error) {
	p, ok := m.users[token]
	if !ok {
		return nil, fmt.Errorf("unknown token")
	}
	return &authgate.Claims{
		Subject:       p.UserID,
		Email:         p.Email,
		Role:          p.Role,
		EmailVerified: p.EmailVerified,
		ExpiresAt:     time.Now().Add(time.Hour),
	}, nil
}

type mockProfiles struct {
	users map[string]*authgate.Profile
}

func (m *mockProfiles) FindProfile(_ context.Context, id string) (*authgate.Profile, error) {
	p, ok := m.users[id]
	if !ok {
		return nil, authgate.ErrProfileNotFound
	}
	return p, nil
}

func (m *mockProfiles) TouchLastSeen(_ context.Context, _ string) error { return nil }

func newTestResolver(users map[string]*authgate.Profile) *resolver.Resolver {
	return resolver.New(&mockVerifier{users: users}, &mockProfiles{users: users})
}

func testUsers() map[string]*authgate.Profile {
	return map[string]*authgate.Profile{
		"user-merchant": {
			UserID: "user-merchant", Email: "m@example.com",
			Role: "merchant", EmailVerified: true, Active: true,
		},
		"user-admin": {
			UserID: "user-admin", Email: "a@example.com",
			Role: "admin", EmailVerified: true, Active: true,
		},
		"user-inactive": {
			UserID: "user-inactive", Email: "i@example.com",
			Role: "individual", EmailVerified: true, Active: false,
		},
	}
}

func newTestRouter(requiredRoles ...string) *gin.Engine {
	res := newTestResolver(testUsers())
	engine := authz.NewEngine(policy.Default())

	r := gin.New()
	r.Use(Auth(res, WithExcludedPaths("/health")))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/admin/users", Gate(engine, requiredRoles...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetUserID(c)})
	})
	return r
}

func doRequest(r *gin.Engine, token, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingToken(t *testing.T) {
	r := newTestRouter("admin")

	w := doRequest(r, "", "/admin/users", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_BrowserRedirectsToSignIn(t *testing.T) {
	r := newTestRouter("admin")

	w := doRequest(r, "", "/admin/users", map[string]string{"Accept": "text/html"})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/auth/signin" {
		t.Errorf("expected redirect to /auth/signin, got %s", loc)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	r := newTestRouter("admin")

	w := doRequest(r, "garbage", "/admin/users", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ExcludedPath(t *testing.T) {
	r := newTestRouter("admin")

	w := doRequest(r, "", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for excluded path, got %d", w.Code)
	}
}

func TestGate_AllowsRequiredRole(t *testing.T) {
	r := newTestRouter("admin")

	w := doRequest(r, "user-admin", "/admin/users", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGate_RedirectsWrongRole(t *testing.T) {
	r := newTestRouter("admin")

	w := doRequest(r, "user-merchant", "/admin/users", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", w.Code)
	}
	// The merchant lands on their own default route, not sign-in.
	if loc := w.Header().Get("Location"); loc != "/dashboard/merchant" {
		t.Errorf("expected redirect to /dashboard/merchant, got %s", loc)
	}
}

func TestGate_DeniesInactiveAccount(t *testing.T) {
	r := newTestRouter("admin")

	w := doRequest(r, "user-inactive", "/admin/users", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestGate_PathPrefixFallback(t *testing.T) {
	res := newTestResolver(testUsers())
	engine := authz.NewEngine(policy.Default())

	r := gin.New()
	r.Use(Auth(res))
	// No required roles: the path prefix decides.
	r.GET("/admin/settings", Gate(engine), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doRequest(r, "user-admin", "/admin/settings", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for admin on /admin, got %d", w.Code)
	}

	w = doRequest(r, "user-merchant", "/admin/settings", nil)
	if w.Code != http.StatusSeeOther {
		t.Errorf("expected 303 for merchant on /admin, got %d", w.Code)
	}
}

func TestGateVerified_DeniesUnverifiedEmail(t *testing.T) {
	users := testUsers()
	users["user-unverified"] = &authgate.Profile{
		UserID: "user-unverified", Email: "u@example.com",
		Role: "merchant", EmailVerified: false, Active: true,
	}
	res := newTestResolver(users)
	engine := authz.NewEngine(policy.Default())

	r := gin.New()
	r.Use(Auth(res))
	r.GET("/payments/send", GateVerified(engine, "merchant"), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doRequest(r, "user-unverified", "/payments/send", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for unverified email, got %d", w.Code)
	}

	w = doRequest(r, "user-merchant", "/payments/send", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for verified merchant, got %d", w.Code)
	}
}

func TestObserve_AuditsDecisions(t *testing.T) {
	var mu sync.Mutex
	var events []audit.Event
	auditLog := audit.New(10, audit.WithHandler(func(e audit.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	defer auditLog.Close()

	res := newTestResolver(testUsers())
	engine := authz.NewEngine(policy.Default())

	r := gin.New()
	r.Use(Observe(nil, auditLog))
	r.Use(Auth(res))
	r.GET("/admin/users", Gate(engine, "admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

	doRequest(r, "user-admin", "/admin/users", nil)
	doRequest(r, "user-merchant", "/admin/users", nil)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].Verdict != "allow" || events[0].UserID != "user-admin" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Verdict != "redirect" || events[1].Target != "/dashboard/merchant" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestObserve_SkipsNonGateStatuses(t *testing.T) {
	var mu sync.Mutex
	var events []audit.Event
	auditLog := audit.New(10, audit.WithHandler(func(e audit.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))
	defer auditLog.Close()

	res := newTestResolver(testUsers())
	engine := authz.NewEngine(policy.Default())

	r := gin.New()
	r.Use(Observe(nil, auditLog))
	r.Use(Auth(res))
	r.GET("/wallet", Gate(engine), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/wallet/broken", Gate(engine), func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	// Missing route and handler failure pass through the gate but are not
	// gate outcomes; only the successful request may count as an allow.
	doRequest(r, "user-merchant", "/no/such/route", nil)
	doRequest(r, "user-merchant", "/wallet/broken", nil)
	doRequest(r, "user-merchant", "/wallet", nil)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected 1 audit event, got %d: %+v", len(events), events)
	}
	if events[0].Verdict != "allow" || events[0].Path != "/wallet" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

// revocableSessions flags one session ID as revoked.
type revocableSessions struct {
	revoked string
}

func (s *revocableSessions) Save(_ context.Context, _ *authgate.SessionRecord) error { return nil }
func (s *revocableSessions) Get(_ context.Context, id string) (*authgate.SessionRecord, error) {
	return &authgate.SessionRecord{ID: id, Revoked: id == s.revoked}, nil
}
func (s *revocableSessions) Revoke(_ context.Context, _ string) error { return nil }
func (s *revocableSessions) Delete(_ context.Context, _ string) error { return nil }

func TestAuth_RevokedSession(t *testing.T) {
	res := newTestResolver(testUsers())
	sessions := &revocableSessions{revoked: "sess-revoked"}

	r := gin.New()
	r.Use(Auth(res, WithSessionStore(sessions)))
	r.GET("/wallet", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doRequest(r, "user-merchant", "/wallet", map[string]string{"X-Session-Id": "sess-ok"})
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for live session, got %d", w.Code)
	}

	w = doRequest(r, "user-merchant", "/wallet", map[string]string{"X-Session-Id": "sess-revoked"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for revoked session, got %d", w.Code)
	}
}
