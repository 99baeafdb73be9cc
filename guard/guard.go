// Package guard is the boundary adapter that wraps a protected region: it
// subscribes to the session lifecycle, feeds each state into the decision
// engine, and performs the navigation side effect at most once per
// distinct verdict.
//
// The guard never exposes protected content while a check is pending or
// failed: callers render their children only when Outcome().Kind is
// OutcomeGranted, and a neutral placeholder otherwise.
package guard

import (
	"context"
	"sync"

	"github.com/zawadipay/authgate-go/authz"
	"github.com/zawadipay/authgate-go/lifecycle"
)

// Navigator performs the redirect side effect.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(route string)

// Navigate calls f.
func (f NavigatorFunc) Navigate(route string) { f(route) }

// OutcomeKind discriminates what the wrapper should render.
type OutcomeKind int

const (
	// OutcomePending: hydration not finished; render a loading
	// placeholder, perform no navigation.
	OutcomePending OutcomeKind = iota

	// OutcomeGranted: render the protected children.
	OutcomeGranted

	// OutcomeRedirecting: navigation issued (or in flight); render a
	// placeholder, never the children.
	OutcomeRedirecting

	// OutcomeBlocked: denial screen labeled with Outcome.Reason.
	OutcomeBlocked

	// OutcomeRetryable: hydration failed; render a retry affordance.
	OutcomeRetryable
)

// Outcome is the guard's current render decision.
type Outcome struct {
	Kind   OutcomeKind
	Target string       // redirect target, set for OutcomeRedirecting
	Reason authz.Reason // denial reason, set for OutcomeBlocked
}

// Config mirrors the guard's recognized options.
type Config struct {
	// RequiredRoles restricts the region to the listed roles. Empty means
	// the engine falls back to the path-prefix policy for Path.
	RequiredRoles []string

	// RequireVerifiedEmail gates the region on the verified-email flag.
	RequireVerifiedEmail bool

	// FallbackRoute overrides the role-mismatch redirect target. The
	// sign-in redirect for unauthenticated callers is never overridden.
	FallbackRoute string

	// Path is the route this guard protects.
	Path string
}

// Guard wraps one protected region.
type Guard struct {
	engine  *authz.Engine
	manager *lifecycle.Manager
	nav     Navigator
	cfg     Config

	mu      sync.RWMutex
	outcome Outcome
	lastNav *authz.Verdict
}

// New creates a Guard. Run must be called for it to take effect.
func New(engine *authz.Engine, manager *lifecycle.Manager, nav Navigator, cfg Config) *Guard {
	return &Guard{
		engine:  engine,
		manager: manager,
		nav:     nav,
		cfg:     cfg,
		outcome: Outcome{Kind: OutcomePending},
	}
}

// Run subscribes to the lifecycle manager and applies verdicts until ctx
// is done. States are observed in emission order; the current state is
// evaluated immediately on subscription.
func (g *Guard) Run(ctx context.Context) {
	states, cancel := g.manager.Subscribe()
	defer cancel()

	for {
		select {
		case state := <-states:
			g.apply(state)
		case <-ctx.Done():
			return
		}
	}
}

// Outcome returns the guard's current render decision.
func (g *Guard) Outcome() Outcome {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.outcome
}

// Retry re-enters hydration after a failure.
func (g *Guard) Retry() {
	g.manager.Retry()
}

// apply evaluates one lifecycle state. Navigation happens only when the
// verdict differs from the last one acted on; a verdict that is stable
// across state re-emissions never re-navigates, which is what prevents
// redirect loops.
func (g *Guard) apply(state lifecycle.State) {
	switch state.Phase {
	case lifecycle.PhaseUninitialized, lifecycle.PhaseHydrating:
		g.setOutcome(Outcome{Kind: OutcomePending})
		return
	case lifecycle.PhaseFailed:
		g.setOutcome(Outcome{Kind: OutcomeRetryable})
		return
	}

	verdict := g.engine.Decide(state.Principal, authz.Check{
		RequiredRoles:        g.cfg.RequiredRoles,
		RequireVerifiedEmail: g.cfg.RequireVerifiedEmail,
		Path:                 g.cfg.Path,
	})

	if verdict.Kind == authz.KindRedirect && state.Principal != nil && g.cfg.FallbackRoute != "" {
		verdict.Target = g.cfg.FallbackRoute
	}

	switch verdict.Kind {
	case authz.KindAllow:
		g.setOutcome(Outcome{Kind: OutcomeGranted})
		g.clearLastNav()

	case authz.KindDeny:
		g.setOutcome(Outcome{Kind: OutcomeBlocked, Reason: verdict.Reason})
		g.clearLastNav()

	case authz.KindRedirect:
		g.setOutcome(Outcome{Kind: OutcomeRedirecting, Target: verdict.Target})
		g.mu.Lock()
		repeat := g.lastNav != nil && *g.lastNav == verdict
		if !repeat {
			v := verdict
			g.lastNav = &v
		}
		g.mu.Unlock()
		if !repeat {
			g.nav.Navigate(verdict.Target)
		}
	}
}

func (g *Guard) setOutcome(o Outcome) {
	g.mu.Lock()
	g.outcome = o
	g.mu.Unlock()
}

// clearLastNav forgets the last navigation once a non-redirect verdict
// lands. The dedup only suppresses a verdict repeated consecutively; a
// redirect that returns after an intervening allow or deny is a new
// transition and must navigate again.
func (g *Guard) clearLastNav() {
	g.mu.Lock()
	g.lastNav = nil
	g.mu.Unlock()
}
