// Package policy holds the static per-role route policy: which route
// prefixes each role may reach, each role's default landing route, and the
// sign-in route for unauthenticated callers.
//
// The table is built once at process start and never mutated. Totality over
// the role enumeration is a startup invariant: a missing role is a
// ConfigError from New, never a runtime condition.
package policy

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	authgate "github.com/zawadipay/authgate-go"
)

// DefaultSignInRoute is used when a config does not override it.
const DefaultSignInRoute = "/auth/signin"

// Entry describes one role's routing policy. The first prefix is the
// role's default landing route.
type Entry struct {
	Label    string   `yaml:"label" validate:"required"`
	Prefixes []string `yaml:"routes" validate:"required,min=1,dive,required,startswith=/"`
}

// Config is the raw policy table before validation.
type Config struct {
	SignInRoute string                  `yaml:"sign_in_route" validate:"omitempty,startswith=/"`
	Roles       map[authgate.Role]Entry `yaml:"roles" validate:"required"`
}

// ConfigError reports a role missing from the policy table. Startup-fatal:
// in a correct deployment it is unreachable at request-handling time.
type ConfigError struct {
	Role authgate.Role
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("policy: no entry for role %q", e.Role)
}

// Table is the validated, immutable route policy.
type Table struct {
	signIn  string
	entries map[authgate.Role]Entry
}

// New validates cfg and builds a Table. It fails if any role in the
// enumeration has no entry, or if an entry is structurally invalid.
func New(cfg Config) (*Table, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("policy: invalid config: %w", err)
	}

	entries := make(map[authgate.Role]Entry, len(cfg.Roles))
	for rawRole, entry := range cfg.Roles {
		role, ok := authgate.ParseRole(string(rawRole))
		if !ok {
			return nil, fmt.Errorf("policy: unknown role %q in config", rawRole)
		}
		entries[role] = entry
	}

	for _, role := range authgate.AllRoles() {
		if _, ok := entries[role]; !ok {
			return nil, &ConfigError{Role: role}
		}
	}

	signIn := cfg.SignInRoute
	if signIn == "" {
		signIn = DefaultSignInRoute
	}
	return &Table{signIn: signIn, entries: entries}, nil
}

// Default returns the built-in platform policy table.
func Default() *Table {
	adminEntry := func(label string) Entry {
		return Entry{
			Label:    label,
			Prefixes: []string{"/admin", "/dashboard", "/settings"},
		}
	}

	t, err := New(Config{
		SignInRoute: DefaultSignInRoute,
		Roles: map[authgate.Role]Entry{
			authgate.RoleIndividual: {
				Label:    "Individual",
				Prefixes: []string{"/dashboard/individual", "/wallet", "/payments", "/settings"},
			},
			authgate.RoleMerchant: {
				Label:    "Merchant",
				Prefixes: []string{"/dashboard/merchant", "/wallet", "/payments", "/pos", "/settings"},
			},
			authgate.RoleDistributor: {
				Label:    "Distributor",
				Prefixes: []string{"/dashboard/distributor", "/wallet", "/inventory", "/settings"},
			},
			authgate.RoleDiaspora: {
				Label:    "Diaspora",
				Prefixes: []string{"/dashboard/diaspora", "/wallet", "/remit", "/settings"},
			},
			authgate.RoleAdmin:           adminEntry("Administrator"),
			authgate.RoleRegionalManager: adminEntry("Regional Manager"),
			authgate.RoleSupportAgent:    adminEntry("Support Agent"),
		},
	})
	if err != nil {
		// The built-in table is total by definition.
		panic(err)
	}
	return t
}

// SignInRoute returns the route unauthenticated callers are redirected to.
func (t *Table) SignInRoute() string { return t.signIn }

// AllowedPrefixes returns the ordered route prefixes for a role.
func (t *Table) AllowedPrefixes(role authgate.Role) []string {
	return t.entries[role].Prefixes
}

// DefaultRoute returns the role's default landing route: the first entry
// in its prefix list. A role's default route always satisfies its own
// prefix check, so redirecting there can never loop.
func (t *Table) DefaultRoute(role authgate.Role) string {
	prefixes := t.entries[role].Prefixes
	if len(prefixes) == 0 {
		return t.signIn
	}
	return prefixes[0]
}

// Label returns the role's human-readable label.
func (t *Table) Label(role authgate.Role) string {
	return t.entries[role].Label
}

// Allows reports whether the path falls under any of the role's allowed
// prefixes. Matching respects segment boundaries: "/wallet" covers
// "/wallet" and "/wallet/send" but never "/walletx".
func (t *Table) Allows(role authgate.Role, path string) bool {
	for _, prefix := range t.entries[role].Prefixes {
		if matchPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func matchPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/' || rest[0] == '?'
}
