package authz

import (
	"testing"

	authgate "github.com/zawadipay/authgate-go"
	"github.com/zawadipay/authgate-go/policy"
)

func newEngine() *Engine {
	return NewEngine(policy.Default())
}

func principal(role authgate.Role) *authgate.Principal {
	return &authgate.Principal{
		ID:            "user-1",
		Email:         "user@example.com",
		Role:          role,
		EmailVerified: true,
		Active:        true,
	}
}

func TestDecide_NoPrincipalRedirectsToSignIn(t *testing.T) {
	e := newEngine()

	v := e.Decide(nil, Check{Path: "/wallet"})
	if v.Kind != KindRedirect || v.Target != policy.DefaultSignInRoute {
		t.Errorf("expected redirect to sign-in, got %+v", v)
	}

	// The sign-in redirect wins over every other consideration.
	v = e.Decide(nil, Check{RequiredRoles: []string{"admin"}, RequireVerifiedEmail: true})
	if v.Kind != KindRedirect || v.Target != policy.DefaultSignInRoute {
		t.Errorf("expected redirect to sign-in, got %+v", v)
	}
}

func TestDecide_InactiveAccountDenied(t *testing.T) {
	e := newEngine()
	p := principal(authgate.RoleMerchant)
	p.Active = false

	v := e.Decide(p, Check{Path: "/dashboard/merchant"})
	if v.Kind != KindDeny || v.Reason != ReasonAccountInactive {
		t.Errorf("expected inactive denial, got %+v", v)
	}
}

func TestDecide_InactiveBeatsRoleMismatch(t *testing.T) {
	e := newEngine()
	p := principal(authgate.RoleIndividual)
	p.Active = false

	// An inactive wrong-role principal is denied, not redirected.
	v := e.Decide(p, Check{RequiredRoles: []string{"admin"}})
	if v.Kind != KindDeny || v.Reason != ReasonAccountInactive {
		t.Errorf("expected inactive denial, got %+v", v)
	}
}

func TestDecide_UnverifiedEmail(t *testing.T) {
	e := newEngine()
	p := principal(authgate.RoleMerchant)
	p.EmailVerified = false

	v := e.Decide(p, Check{RequireVerifiedEmail: true, Path: "/payments"})
	if v.Kind != KindDeny || v.Reason != ReasonEmailNotVerified {
		t.Errorf("expected unverified denial, got %+v", v)
	}

	// Without the requirement the same principal passes.
	v = e.Decide(p, Check{Path: "/payments"})
	if v.Kind != KindAllow {
		t.Errorf("expected allow without verification requirement, got %+v", v)
	}
}

func TestDecide_RequiredRoles(t *testing.T) {
	e := newEngine()

	v := e.Decide(principal(authgate.RoleMerchant), Check{RequiredRoles: []string{"merchant"}})
	if v.Kind != KindAllow {
		t.Errorf("expected allow for matching role, got %+v", v)
	}

	v = e.Decide(principal(authgate.RoleIndividual), Check{RequiredRoles: []string{"merchant", "distributor"}})
	if v.Kind != KindRedirect || v.Target != "/dashboard/individual" {
		t.Errorf("expected redirect to caller's default route, got %+v", v)
	}
}

func TestDecide_RequiredRolesNormalized(t *testing.T) {
	e := newEngine()

	// Case and separator differences must not matter.
	for _, raw := range []string{"Merchant", "MERCHANT", " merchant "} {
		v := e.Decide(principal(authgate.RoleMerchant), Check{RequiredRoles: []string{raw}})
		if v.Kind != KindAllow {
			t.Errorf("required role %q should match merchant, got %+v", raw, v)
		}
	}

	v := e.Decide(principal(authgate.RoleRegionalManager), Check{RequiredRoles: []string{"Regional-Manager"}})
	if v.Kind != KindAllow {
		t.Errorf("hyphenated required role should match, got %+v", v)
	}
}

func TestDecide_UnknownRequiredRoleNeverMatches(t *testing.T) {
	e := newEngine()

	v := e.Decide(principal(authgate.RoleMerchant), Check{RequiredRoles: []string{"superuser"}})
	if v.Kind != KindRedirect {
		t.Errorf("unknown required role should redirect, got %+v", v)
	}
}

func TestDecide_AdminTierSatisfiesAdmin(t *testing.T) {
	e := newEngine()

	for _, role := range []authgate.Role{authgate.RoleAdmin, authgate.RoleRegionalManager, authgate.RoleSupportAgent} {
		v := e.Decide(principal(role), Check{RequiredRoles: []string{"admin"}})
		if v.Kind != KindAllow {
			t.Errorf("role %s should satisfy an admin requirement, got %+v", role, v)
		}
	}

	// The converse does not hold: an explicit support_agent requirement
	// is a distinct role, which admin does not satisfy.
	v := e.Decide(principal(authgate.RoleAdmin), Check{RequiredRoles: []string{"support_agent"}})
	if v.Kind != KindRedirect || v.Target != "/admin" {
		t.Errorf("admin should be redirected off a support_agent-only region, got %+v", v)
	}
}

func TestDecide_EmptyRequiredRolesFallsBackToPath(t *testing.T) {
	e := newEngine()

	// Empty and nil both mean "no role restriction", not "deny all".
	for _, required := range [][]string{nil, {}} {
		v := e.Decide(principal(authgate.RoleIndividual), Check{RequiredRoles: required, Path: "/wallet"})
		if v.Kind != KindAllow {
			t.Errorf("expected allow via path prefix with required=%v, got %+v", required, v)
		}
	}
}

func TestDecide_PathOutsideRolePrefixes(t *testing.T) {
	e := newEngine()

	v := e.Decide(principal(authgate.RoleDiaspora), Check{Path: "/pos"})
	if v.Kind != KindRedirect || v.Target != "/dashboard/diaspora" {
		t.Errorf("expected redirect to diaspora default route, got %+v", v)
	}
}

func TestDecide_RedirectTargetNeverLoops(t *testing.T) {
	e := newEngine()

	// Deciding the redirect target itself must come out allow, for every
	// role: otherwise a mismatch would bounce forever.
	for _, role := range authgate.AllRoles() {
		v := e.Decide(principal(role), Check{RequiredRoles: []string{"no_such_role"}})
		if v.Kind != KindRedirect {
			t.Fatalf("role %s: expected redirect, got %+v", role, v)
		}
		follow := e.Decide(principal(role), Check{Path: v.Target})
		if follow.Kind != KindAllow {
			t.Errorf("role %s: redirect target %s not allowed for the role itself: %+v", role, v.Target, follow)
		}
	}
}

func TestDecide_IsPure(t *testing.T) {
	e := newEngine()
	p := principal(authgate.RoleMerchant)
	chk := Check{RequiredRoles: []string{"admin"}}

	first := e.Decide(p, chk)
	for i := 0; i < 10; i++ {
		if v := e.Decide(p, chk); v != first {
			t.Fatalf("verdict changed across identical evaluations: %+v vs %+v", first, v)
		}
	}

	// A changed principal takes effect immediately, nothing is cached.
	p.Role = authgate.RoleAdmin
	if v := e.Decide(p, chk); v.Kind != KindAllow {
		t.Errorf("role change should flip the verdict, got %+v", v)
	}
}

func TestVerdictComparable(t *testing.T) {
	a := RedirectTo("/dashboard/merchant")
	b := RedirectTo("/dashboard/merchant")
	if a != b {
		t.Error("identical redirect verdicts must compare equal")
	}
	if Allow() == Deny(ReasonAccountInactive) {
		t.Error("distinct verdicts must not compare equal")
	}
}
