// Package lifecycle owns the session state machine: the single source of
// truth for whether a client is signed in, who the principal is, and
// whether hydration is still in flight.
//
// The state is single-writer, many-reader. All transitions are messages
// consumed by one owner goroutine; readers observe the state through
// Current and Subscribe and never mutate it. Hydration attempts are
// stamped with an epoch so that a superseded or cancelled attempt can
// never mutate state when its result finally arrives (last-write-wins).
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	authgate "github.com/zawadipay/authgate-go"
	"github.com/zawadipay/authgate-go/audit"
	"github.com/zawadipay/authgate-go/metrics"
)

// Phase enumerates the session states.
type Phase int

const (
	// PhaseUninitialized is the state before Start. No authorization
	// decision may be made here.
	PhaseUninitialized Phase = iota

	// PhaseHydrating means session resolution is in flight. No
	// authorization decision may be made here either; callers show a
	// neutral loading state.
	PhaseHydrating

	// PhaseAuthenticated carries a resolved Principal.
	PhaseAuthenticated

	// PhaseUnauthenticated means there is no session.
	PhaseUnauthenticated

	// PhaseFailed means hydration failed (identity provider unreachable).
	// Terminal for that attempt; Retry re-enters PhaseHydrating.
	PhaseFailed
)

// String returns the phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseHydrating:
		return "hydrating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Ready reports whether authorization decisions may be made in this phase.
func (p Phase) Ready() bool {
	return p == PhaseAuthenticated || p == PhaseUnauthenticated || p == PhaseFailed
}

// State is a snapshot of the session state machine.
type State struct {
	Phase     Phase
	Principal *authgate.Principal // non-nil only in PhaseAuthenticated
	Err       error               // non-nil only in PhaseFailed
}

// ResolveFunc resolves an access token to a Principal, nil when there is
// none. resolver.Resolver.Resolve satisfies this.
type ResolveFunc func(ctx context.Context, accessToken string) *authgate.Principal

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdSignedIn
	cmdSignOut
	cmdRefresh
	cmdRetry
	cmdSessionChanged
	cmdHydrated
)

type command struct {
	kind      cmdKind
	epoch     uint64
	token     *authgate.SessionToken
	principal *authgate.Principal
	err       error
	started   time.Time // hydration start, zero for quiet re-resolves
}

const subscriberBuffer = 16

// Manager is the session lifecycle state machine.
type Manager struct {
	provider authgate.IdentityProvider
	resolve  ResolveFunc
	logger   *slog.Logger
	metrics  *metrics.Metrics
	audit    *audit.Logger

	cmds chan command
	done chan struct{}
	wg   sync.WaitGroup

	// Owned by the run loop.
	epoch         uint64
	hydrateCancel context.CancelFunc

	mu    sync.RWMutex
	state State
	token *authgate.SessionToken

	subMu     sync.Mutex
	subs      map[uint64]chan State
	nextSubID uint64

	cancelProviderSub func()
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records hydrations and sign-in failures.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithAudit emits sign_in, sign_out, hydration, and refresh audit events.
func WithAudit(l *audit.Logger) Option {
	return func(m *Manager) { m.audit = l }
}

// New creates a Manager and starts its owner goroutine. The manager
// subscribes to the provider's session-change notifications so that an
// externally revoked or refreshed session is reflected without polling.
// Call Close to release it.
func New(provider authgate.IdentityProvider, resolve ResolveFunc, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		resolve:  resolve,
		logger:   slog.Default(),
		cmds:     make(chan command, 64),
		done:     make(chan struct{}),
		state:    State{Phase: PhaseUninitialized},
		subs:     make(map[uint64]chan State),
	}
	for _, o := range opts {
		o(m)
	}

	m.cancelProviderSub = provider.OnSessionChange(func(token *authgate.SessionToken) {
		m.send(command{kind: cmdSessionChanged, token: token})
	})

	m.wg.Add(1)
	go m.run()
	return m
}

// Start begins the initial hydration: uninitialized → hydrating.
func (m *Manager) Start() {
	m.send(command{kind: cmdStart})
}

// SignIn verifies credentials with the identity provider and, on success,
// enters hydration with the issued session token. Credential errors are
// returned to the caller directly and leave the state untouched.
func (m *Manager) SignIn(ctx context.Context, email, secret string) error {
	token, err := m.provider.VerifyCredentials(ctx, email, secret)
	if err != nil {
		reason := "provider_error"
		if errors.Is(err, authgate.ErrInvalidCredentials) {
			reason = "invalid_credentials"
		}
		if m.metrics != nil {
			m.metrics.RecordSignInFailure(reason)
		}
		if m.audit != nil {
			m.audit.Log(audit.Event{Action: "sign_in", Reason: reason, Error: err.Error()})
		}
		return fmt.Errorf("lifecycle: sign-in: %w", err)
	}
	if m.audit != nil {
		m.audit.Log(audit.Event{Action: "sign_in"})
	}
	m.send(command{kind: cmdSignedIn, token: token})
	return nil
}

// SignOut invalidates the current session with the provider (best effort)
// and transitions to unauthenticated. Any in-flight hydration is
// cancelled; its result will be discarded on arrival.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token != nil {
		if err := m.provider.InvalidateSession(ctx, token.AccessToken); err != nil {
			m.logger.Warn("session invalidation failed", "error", err)
		}
	}
	if m.audit != nil {
		event := audit.Event{Action: "sign_out"}
		if p := m.Current().Principal; p != nil {
			event.UserID = p.ID
			event.Role = string(p.Role)
		}
		m.audit.Log(event)
	}
	m.send(command{kind: cmdSignOut})
}

// Refresh re-resolves the current principal from the session token. The
// replacement is wholesale: a changed role or verification flag produces a
// new authenticated state broadcast to every subscriber, so active guards
// re-evaluate without remounting. The phase stays authenticated throughout.
func (m *Manager) Refresh() {
	m.send(command{kind: cmdRefresh})
}

// Retry re-enters hydration after a failure.
func (m *Manager) Retry() {
	m.send(command{kind: cmdRetry})
}

// Current returns a snapshot of the session state.
func (m *Manager) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe registers a read-only state subscription. The current state is
// delivered first, then every subsequent transition in emission order. A
// subscriber that falls behind loses the oldest states first, never the
// newest. The returned function cancels the subscription.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBuffer)

	// Snapshot and registration happen under the broadcast lock so no
	// transition can slip between them; at worst the subscriber sees the
	// same state twice, never a gap.
	m.subMu.Lock()
	ch <- m.Current()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = ch
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
	return ch, cancel
}

// Close stops the manager and releases its provider subscription.
func (m *Manager) Close() error {
	if m.cancelProviderSub != nil {
		m.cancelProviderSub()
	}
	close(m.done)
	m.wg.Wait()
	return nil
}

func (m *Manager) send(cmd command) {
	select {
	case m.cmds <- cmd:
	case <-m.done:
	}
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case cmd := <-m.cmds:
			m.apply(cmd)
		case <-m.done:
			if m.hydrateCancel != nil {
				m.hydrateCancel()
			}
			return
		}
	}
}

// apply executes one transition. Runs only on the owner goroutine.
func (m *Manager) apply(cmd command) {
	switch cmd.kind {
	case cmdStart:
		if m.Current().Phase != PhaseUninitialized {
			return
		}
		m.beginHydration(nil)

	case cmdSignedIn:
		m.beginHydration(cmd.token)

	case cmdSignOut:
		m.supersede()
		m.setToken(nil)
		m.setState(State{Phase: PhaseUnauthenticated})

	case cmdRefresh:
		cur := m.Current()
		if cur.Phase != PhaseAuthenticated {
			return
		}
		m.mu.RLock()
		token := m.token
		m.mu.RUnlock()
		if token == nil {
			m.setState(State{Phase: PhaseUnauthenticated})
			return
		}
		if m.audit != nil && cur.Principal != nil {
			m.audit.Log(audit.Event{
				Action: "refresh",
				UserID: cur.Principal.ID,
				Role:   string(cur.Principal.Role),
			})
		}
		m.beginResolve(token)

	case cmdRetry:
		if m.Current().Phase != PhaseFailed {
			return
		}
		m.beginHydration(nil)

	case cmdSessionChanged:
		if cmd.token == nil {
			// External expiry or revocation.
			if m.Current().Phase != PhaseAuthenticated {
				return
			}
			m.supersede()
			m.setToken(nil)
			m.setState(State{Phase: PhaseUnauthenticated})
			return
		}
		// Token rotated externally: re-resolve without a phase change.
		m.beginResolve(cmd.token)

	case cmdHydrated:
		if cmd.epoch != m.epoch {
			// Superseded or cancelled attempt; discard.
			m.logger.Debug("discarding stale hydration result", "epoch", cmd.epoch)
			return
		}
		m.hydrateCancel = nil
		switch {
		case cmd.err != nil:
			m.setToken(nil)
			m.setState(State{Phase: PhaseFailed, Err: cmd.err})
			m.recordHydration(cmd, "failed")
		case cmd.principal == nil:
			m.setToken(nil)
			m.setState(State{Phase: PhaseUnauthenticated})
			m.recordHydration(cmd, "unauthenticated")
		default:
			m.setToken(cmd.token)
			m.setState(State{Phase: PhaseAuthenticated, Principal: cmd.principal})
			m.recordHydration(cmd, "authenticated")
		}
	}
}

// recordHydration reports one settled hydration attempt. Quiet re-resolves
// (refresh, token rotation) carry no start time and are not counted.
func (m *Manager) recordHydration(cmd command, result string) {
	if cmd.started.IsZero() {
		return
	}
	if m.metrics != nil {
		m.metrics.RecordHydration(result, time.Since(cmd.started).Seconds())
	}
	if m.audit != nil {
		event := audit.Event{Action: "hydration", Verdict: result}
		if cmd.principal != nil {
			event.UserID = cmd.principal.ID
			event.Role = string(cmd.principal.Role)
		}
		if cmd.err != nil {
			event.Error = cmd.err.Error()
		}
		m.audit.Log(event)
	}
}

// beginHydration supersedes any in-flight attempt and starts a new one.
// token == nil means "ask the provider for the current session".
func (m *Manager) beginHydration(token *authgate.SessionToken) {
	m.supersede()
	m.setState(State{Phase: PhaseHydrating})

	epoch := m.epoch
	started := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	m.hydrateCancel = cancel

	go m.hydrate(ctx, epoch, token, started)
}

// beginResolve supersedes any in-flight attempt and re-resolves a known
// token without touching the current phase. Used for refresh and external
// token rotation, where entering PhaseHydrating would flash a loading
// state over content the caller is still entitled to see.
func (m *Manager) beginResolve(token *authgate.SessionToken) {
	m.supersede()

	epoch := m.epoch
	ctx, cancel := context.WithCancel(context.Background())
	m.hydrateCancel = cancel

	go func() {
		p := m.resolve(ctx, token.AccessToken)
		if ctx.Err() != nil {
			return
		}
		m.send(command{kind: cmdHydrated, epoch: epoch, token: token, principal: p})
	}()
}

// supersede bumps the epoch and cancels the in-flight attempt, if any.
// Results stamped with an older epoch are discarded on arrival.
func (m *Manager) supersede() {
	m.epoch++
	if m.hydrateCancel != nil {
		m.hydrateCancel()
		m.hydrateCancel = nil
	}
}

// hydrate resolves the session off the owner goroutine and reports back
// through the command channel.
func (m *Manager) hydrate(ctx context.Context, epoch uint64, token *authgate.SessionToken, started time.Time) {
	if token == nil {
		t, err := m.provider.CurrentSession(ctx)
		if err != nil && ctx.Err() == nil {
			// One silent retry; a persistent outage surfaces as a
			// failure with an explicit retry affordance instead of
			// being masked by endless background attempts.
			t, err = m.provider.CurrentSession(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.send(command{kind: cmdHydrated, epoch: epoch, err: err, started: started})
			return
		}
		token = t
	}

	if token == nil {
		m.send(command{kind: cmdHydrated, epoch: epoch, started: started})
		return
	}

	p := m.resolve(ctx, token.AccessToken)
	if ctx.Err() != nil {
		return
	}
	m.send(command{kind: cmdHydrated, epoch: epoch, token: token, principal: p, started: started})
}

func (m *Manager) setToken(t *authgate.SessionToken) {
	m.mu.Lock()
	m.token = t
	m.mu.Unlock()
}

// setState publishes a new state and broadcasts it to subscribers in
// emission order. A full subscriber buffer drops the oldest entry.
func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()

	m.logger.Debug("session state", "phase", s.Phase.String())

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		for {
			select {
			case ch <- s:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
