// Package grpcmw provides gRPC interceptors for the gate.
//
// UnaryAuth and StreamAuth resolve the bearer token from incoming metadata
// to a Principal and attach it to the context. UnaryRequireRoles evaluates
// the route policy; redirect verdicts have no gRPC equivalent and map to
// PermissionDenied.
package grpcmw

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	authgate "github.com/zawadipay/authgate-go"
	"github.com/zawadipay/authgate-go/authz"
	"github.com/zawadipay/authgate-go/resolver"
)

// AuthOption configures auth interceptor behavior.
type AuthOption func(*authConfig)

type authConfig struct {
	excludedMethods map[string]bool
}

// WithExcludedMethods sets gRPC methods that skip authentication.
// Methods should be fully qualified (e.g. "/package.Service/Method").
func WithExcludedMethods(methods ...string) AuthOption {
	return func(cfg *authConfig) {
		for _, m := range methods {
			cfg.excludedMethods[m] = true
		}
	}
}

// UnaryAuth returns a unary server interceptor that resolves the bearer
// token to a Principal and stores it in the context.
func UnaryAuth(res *resolver.Resolver, opts ...AuthOption) grpc.UnaryServerInterceptor {
	cfg := &authConfig{excludedMethods: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if cfg.excludedMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		ctx, err := authenticate(ctx, res)
		if err != nil {
			return nil, err
		}

		return handler(ctx, req)
	}
}

// StreamAuth returns a stream server interceptor that resolves the bearer
// token to a Principal and stores it in the stream context.
func StreamAuth(res *resolver.Resolver, opts ...AuthOption) grpc.StreamServerInterceptor {
	cfg := &authConfig{excludedMethods: make(map[string]bool)}
	for _, o := range opts {
		o(cfg)
	}

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg.excludedMethods[info.FullMethod] {
			return handler(srv, ss)
		}

		ctx, err := authenticate(ss.Context(), res)
		if err != nil {
			return err
		}

		wrapped := &wrappedStream{ServerStream: ss, ctx: ctx}
		return handler(srv, wrapped)
	}
}

// UnaryRequireRoles returns a unary server interceptor that restricts a
// service to the given roles. Requires UnaryAuth to run first. Redirect
// verdicts become PermissionDenied: there is nowhere to send a gRPC caller.
//
// With no roles the interceptor is a pass-through. gRPC methods carry no
// route path, so the engine's path-prefix fallback cannot apply here; an
// empty role list means UnaryAuth alone decides access.
func UnaryRequireRoles(engine *authz.Engine, requiredRoles ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if len(requiredRoles) == 0 {
			return handler(ctx, req)
		}

		p := authgate.PrincipalFromContext(ctx)

		verdict := engine.Decide(p, authz.Check{RequiredRoles: requiredRoles})
		switch verdict.Kind {
		case authz.KindAllow:
			return handler(ctx, req)
		case authz.KindDeny:
			return nil, status.Error(codes.PermissionDenied, string(verdict.Reason))
		default:
			if p == nil {
				return nil, status.Error(codes.Unauthenticated, "authentication required")
			}
			return nil, status.Error(codes.PermissionDenied, "role not permitted")
		}
	}
}

// --- internal helpers ---

func authenticate(ctx context.Context, res *resolver.Resolver) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing metadata")
	}

	token := extractBearerFromMD(md)
	p := res.Resolve(ctx, token)
	if p == nil {
		return ctx, status.Error(codes.Unauthenticated, "authentication required")
	}

	ctx = authgate.WithPrincipal(ctx, p)
	ctx = authgate.WithUserID(ctx, p.ID)

	return ctx, nil
}

func extractBearerFromMD(md metadata.MD) string {
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	parts := strings.SplitN(vals[0], " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// wrappedStream wraps grpc.ServerStream to override Context().
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
