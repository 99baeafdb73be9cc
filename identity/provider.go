// Package identity implements authgate.IdentityProvider against a hosted
// auth HTTP API: password-grant credential verification, refresh-token
// rotation, and logout. Session tokens remain opaque to the rest of the
// gate.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	authgate "github.com/zawadipay/authgate-go"
)

// Provider talks to the hosted auth token endpoints.
type Provider struct {
	baseURL       string
	apiKey        string
	refreshBuffer time.Duration
	httpClient    *http.Client

	mu      sync.RWMutex
	current *authgate.SessionToken

	sf singleflight.Group

	lmu       sync.Mutex
	listeners map[uint64]func(*authgate.SessionToken)
	nextID    uint64
}

// compile-time check
var _ authgate.IdentityProvider = (*Provider)(nil)

// Option configures the Provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithRefreshBuffer sets how long before expiry the session token is
// refreshed. Default: 5 minutes.
func WithRefreshBuffer(d time.Duration) Option {
	return func(p *Provider) { p.refreshBuffer = d }
}

// New creates a Provider. baseURL is the auth service root (the provider
// appends /token and /logout); apiKey is the public API key sent with
// every request.
func New(baseURL, apiKey string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		apiKey:        apiKey,
		refreshBuffer: authgate.DefaultTokenRefreshBuffer,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		listeners:     make(map[uint64]func(*authgate.SessionToken)),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// tokenResponse is the raw JSON response from the token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int32  `json:"expires_in"`
}

// VerifyCredentials checks an email/secret pair via the password grant.
// Rejected credentials map to authgate.ErrInvalidCredentials.
func (p *Provider) VerifyCredentials(ctx context.Context, email, secret string) (*authgate.SessionToken, error) {
	form := url.Values{
		"grant_type": {"password"},
		"email":      {email},
		"password":   {secret},
	}

	token, status, err := p.postToken(ctx, form)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return nil, authgate.ErrInvalidCredentials
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("authgate/identity: token endpoint returned %d", status)
	}

	// No listener notification here: the caller initiated this sign-in
	// and receives the token directly. OnSessionChange is for changes the
	// caller did not trigger.
	p.mu.Lock()
	p.current = token
	p.mu.Unlock()
	return token, nil
}

// CurrentSession returns the provider's session token, refreshing it when
// it is inside the expiry buffer. (nil, nil) means signed out; an error
// means the auth service was unreachable.
func (p *Provider) CurrentSession(ctx context.Context) (*authgate.SessionToken, error) {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()

	if current == nil {
		return nil, nil
	}
	if !current.Expired(time.Now().Add(p.refreshBuffer)) {
		return current, nil
	}
	if current.RefreshToken == "" {
		// Expired with nothing to refresh: the session is over.
		p.setCurrent(nil)
		return nil, nil
	}

	// singleflight prevents concurrent guards from racing the refresh.
	result, err, _ := p.sf.Do("refresh", func() (interface{}, error) {
		return p.refresh(ctx, current.RefreshToken)
	})
	if err != nil {
		return nil, err
	}
	return result.(*authgate.SessionToken), nil
}

// Refresh exchanges a refresh token for a fresh session token.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*authgate.SessionToken, error) {
	return p.refresh(ctx, refreshToken)
}

func (p *Provider) refresh(ctx context.Context, refreshToken string) (*authgate.SessionToken, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	token, status, err := p.postToken(ctx, form)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusOK:
		p.setCurrent(token)
		return token, nil
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		// Refresh token revoked or expired server-side: session ended.
		p.setCurrent(nil)
		return nil, authgate.ErrNoSession
	default:
		return nil, fmt.Errorf("authgate/identity: token endpoint returned %d", status)
	}
}

// InvalidateSession revokes the session behind the access token. A token
// the service no longer recognizes counts as already invalidated.
func (p *Provider) InvalidateSession(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("authgate/identity: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	p.setAPIKey(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("authgate/identity: logout request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("authgate/identity: logout returned %d", resp.StatusCode)
	}

	p.setCurrent(nil)
	return nil
}

// OnSessionChange registers a callback fired on refresh and invalidation,
// not on caller-initiated sign-in. The token is nil when the session ended.
func (p *Provider) OnSessionChange(fn func(*authgate.SessionToken)) (cancel func()) {
	p.lmu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.lmu.Unlock()

	return func() {
		p.lmu.Lock()
		delete(p.listeners, id)
		p.lmu.Unlock()
	}
}

// postToken posts a form to the token endpoint. A non-nil error means the
// request never completed; HTTP-level rejections come back as the status.
func (p *Provider) postToken(ctx context.Context, form url.Values) (*authgate.SessionToken, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("authgate/identity: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	p.setAPIKey(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("authgate/identity: token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("authgate/identity: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, 0, fmt.Errorf("authgate/identity: decode response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, 0, fmt.Errorf("authgate/identity: empty access_token in response")
	}

	return &authgate.SessionToken{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}, resp.StatusCode, nil
}

func (p *Provider) setAPIKey(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}
}

// setCurrent swaps the cached session token and notifies listeners.
func (p *Provider) setCurrent(t *authgate.SessionToken) {
	p.mu.Lock()
	p.current = t
	p.mu.Unlock()

	p.lmu.Lock()
	fns := make([]func(*authgate.SessionToken), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.lmu.Unlock()

	for _, fn := range fns {
		fn(t)
	}
}
