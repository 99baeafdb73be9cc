// Package authgate provides the role-based authentication and authorization
// gate for the platform: session resolution, a static per-role route policy,
// a pure authorization decision engine, and a session lifecycle state machine
// with guard adapters for HTTP and gRPC.
//
// The root package defines types and collaborator interfaces; concrete
// implementations (identity provider, token verifier, stores) are injected
// via Option functions, keeping the gate independent of any specific hosted
// auth backend.
//
// Example usage with a JWKS-based token verifier:
//
//	client, err := authgate.NewClient(
//	    authgate.Config{JWKSUrl: "https://auth.example.com/.well-known/jwks.json"},
//	    authgate.WithTokenVerifier(verifier),
//	    authgate.WithProfileStore(profiles),
//	)
package authgate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Client bundles the injected collaborators consumed by the gate.
type Client struct {
	config   Config
	logger   *slog.Logger
	provider IdentityProvider
	verifier TokenVerifier
	profiles ProfileStore
	sessions SessionStore
}

// Config holds connection and behavior configuration.
type Config struct {
	// Endpoint is the base URL of the hosted identity provider.
	Endpoint string

	// JWKSUrl is the URL to fetch JWKS public keys for local token
	// verification. Example: "https://auth.example.com/.well-known/jwks.json"
	JWKSUrl string

	// TokenRefreshBuffer is how long before expiry a session token is
	// refreshed. Default: 5 minutes.
	TokenRefreshBuffer time.Duration

	// TouchTimeout bounds the fire-and-forget last-seen write performed by
	// the resolver. Default: 3 seconds.
	TouchTimeout time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithIdentityProvider sets the hosted identity provider implementation.
func WithIdentityProvider(p IdentityProvider) Option {
	return func(c *Client) { c.provider = p }
}

// WithTokenVerifier sets the token verification implementation.
func WithTokenVerifier(v TokenVerifier) Option {
	return func(c *Client) { c.verifier = v }
}

// WithProfileStore sets the user/profile store implementation.
func WithProfileStore(s ProfileStore) Option {
	return func(c *Client) { c.profiles = s }
}

// WithSessionStore sets the server-side session store implementation.
func WithSessionStore(s SessionStore) Option {
	return func(c *Client) { c.sessions = s }
}

// Defaults applied by NewClient.
const (
	DefaultTokenRefreshBuffer = 5 * time.Minute
	DefaultTouchTimeout       = 3 * time.Second
)

// NewClient creates a new gate client with the given configuration and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" && cfg.JWKSUrl == "" {
		return nil, fmt.Errorf("authgate: at least one of Endpoint or JWKSUrl is required")
	}
	if cfg.TokenRefreshBuffer == 0 {
		cfg.TokenRefreshBuffer = DefaultTokenRefreshBuffer
	}
	if cfg.TouchTimeout == 0 {
		cfg.TouchTimeout = DefaultTouchTimeout
	}

	c := &Client{config: cfg}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the configured logger, or slog.Default() if none was set.
func (c *Client) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Provider returns the identity provider, or nil if not configured.
func (c *Client) Provider() IdentityProvider { return c.provider }

// Verifier returns the token verifier, or nil if not configured.
func (c *Client) Verifier() TokenVerifier { return c.verifier }

// Profiles returns the profile store, or nil if not configured.
func (c *Client) Profiles() ProfileStore { return c.profiles }

// Sessions returns the session store, or nil if not configured.
func (c *Client) Sessions() SessionStore { return c.sessions }

// HealthCheck performs a basic readiness check: at least one collaborator
// must be configured, and a configured provider must be reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.provider == nil && c.verifier == nil && c.profiles == nil && c.sessions == nil {
		return fmt.Errorf("authgate: no services configured, nothing to health check")
	}
	if c.provider != nil {
		if _, err := c.provider.CurrentSession(ctx); err != nil {
			return fmt.Errorf("authgate: identity provider unreachable: %w", err)
		}
	}
	return nil
}

// Close releases all resources held by the client.
// Any injected service that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []interface{}{
		c.provider, c.verifier, c.profiles, c.sessions,
	}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
