package grpcmw

import (
	"context"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	authgate "github.com/zawadipay/authgate-go"
	"github.com/zawadipay/authgate-go/authz"
	"github.com/zawadipay/authgate-go/policy"
	"github.com/zawadipay/authgate-go/resolver"
)

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
		Subject:   p.UserID,
		Email:     p.Email,
		Role:      p.Role,
		ExpiresAt: time.Now().Add(time.Hour),
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

func newTestResolver() *resolver.Resolver {
	users := map[string]*authgate.Profile{
		"user-admin": {
			UserID: "user-admin", Email: "a@example.com",
			Role: "admin", EmailVerified: true, Active: true,
		},
		"user-individual": {
			UserID: "user-individual", Email: "i@example.com",
			Role: "individual", EmailVerified: true, Active: true,
		},
		"user-inactive": {
			UserID: "user-inactive", Email: "x@example.com",
			Role: "individual", EmailVerified: true, Active: false,
		},
	}
	return resolver.New(&mockVerifier{users: users}, &mockProfiles{users: users})
}

func ctxWithToken(token string) context.Context {
	md := metadata.New(map[string]string{"authorization": "Bearer " + token})
	return metadata.NewIncomingContext(context.Background(), md)
}

func passthrough(ctx context.Context, req interface{}) (interface{}, error) {
	return "ok", nil
}

func TestUnaryAuth_ValidToken(t *testing.T) {
	interceptor := UnaryAuth(newTestResolver())
	info := &grpc.UnaryServerInfo{FullMethod: "/pay.Wallet/GetBalance"}

	var gotUserID string
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		gotUserID = authgate.UserIDFromContext(ctx)
		return "ok", nil
	}

	resp, err := interceptor(ctxWithToken("user-admin"), nil, info, handler)
	if err != nil {
		t.Fatalf("interceptor returned error: %v", err)
	}
	if resp != "ok" {
		t.Errorf("unexpected response: %v", resp)
	}
	if gotUserID != "user-admin" {
		t.Errorf("expected user-admin in context, got %q", gotUserID)
	}
}

func TestUnaryAuth_MissingToken(t *testing.T) {
	interceptor := UnaryAuth(newTestResolver())
	info := &grpc.UnaryServerInfo{FullMethod: "/pay.Wallet/GetBalance"}

	_, err := interceptor(context.Background(), nil, info, passthrough)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryAuth_InvalidToken(t *testing.T) {
	interceptor := UnaryAuth(newTestResolver())
	info := &grpc.UnaryServerInfo{FullMethod: "/pay.Wallet/GetBalance"}

	_, err := interceptor(ctxWithToken("garbage"), nil, info, passthrough)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryAuth_ExcludedMethod(t *testing.T) {
	interceptor := UnaryAuth(newTestResolver(),
		WithExcludedMethods("/grpc.health.v1.Health/Check"))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := interceptor(context.Background(), nil, info, passthrough)
	if err != nil {
		t.Fatalf("excluded method should skip auth: %v", err)
	}
	if resp != "ok" {
		t.Errorf("unexpected response: %v", resp)
	}
}

func TestUnaryRequireRoles(t *testing.T) {
	res := newTestResolver()
	engine := authz.NewEngine(policy.Default())

	auth := UnaryAuth(res)
	require := UnaryRequireRoles(engine, "admin")
	info := &grpc.UnaryServerInfo{FullMethod: "/pay.Admin/ListUsers"}

	chain := func(ctx context.Context) (interface{}, error) {
		return auth(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return require(ctx, req, info, passthrough)
		})
	}

	if _, err := chain(ctxWithToken("user-admin")); err != nil {
		t.Errorf("admin should pass, got %v", err)
	}

	_, err := chain(ctxWithToken("user-individual"))
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("expected PermissionDenied for individual, got %v", err)
	}

	_, err = chain(ctxWithToken("user-inactive"))
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("expected PermissionDenied for inactive account, got %v", err)
	}
}

func TestUnaryRequireRoles_NoPrincipal(t *testing.T) {
	engine := authz.NewEngine(policy.Default())
	require := UnaryRequireRoles(engine, "admin")
	info := &grpc.UnaryServerInfo{FullMethod: "/pay.Admin/ListUsers"}

	_, err := require(context.Background(), nil, info, passthrough)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated without principal, got %v", err)
	}
}

func TestUnaryRequireRoles_NoRolesIsPassThrough(t *testing.T) {
	res := newTestResolver()
	engine := authz.NewEngine(policy.Default())

	auth := UnaryAuth(res)
	require := UnaryRequireRoles(engine)
	info := &grpc.UnaryServerInfo{FullMethod: "/pay.Wallet/GetBalance"}

	chain := func(ctx context.Context) (interface{}, error) {
		return auth(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return require(ctx, req, info, passthrough)
		})
	}

	// No role restriction: any authenticated caller passes.
	resp, err := chain(ctxWithToken("user-individual"))
	if err != nil {
		t.Fatalf("authenticated caller should pass without role restriction, got %v", err)
	}
	if resp != "ok" {
		t.Errorf("unexpected response: %v", resp)
	}
}

// mockStream implements grpc.ServerStream for testing.
type mockStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockStream) Context() context.Context { return m.ctx }

func TestStreamAuth(t *testing.T) {
	interceptor := StreamAuth(newTestResolver())
	info := &grpc.StreamServerInfo{FullMethod: "/pay.Wallet/WatchBalance"}

	var gotUserID string
	handler := func(srv interface{}, ss grpc.ServerStream) error {
		gotUserID = authgate.UserIDFromContext(ss.Context())
		return nil
	}

	stream := &mockStream{ctx: ctxWithToken("user-individual")}
	if err := interceptor(nil, stream, info, handler); err != nil {
		t.Fatalf("interceptor returned error: %v", err)
	}
	if gotUserID != "user-individual" {
		t.Errorf("expected user-individual in stream context, got %q", gotUserID)
	}

	stream = &mockStream{ctx: context.Background()}
	err := interceptor(nil, stream, info, handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("expected Unauthenticated, got %v", err)
	}
}
