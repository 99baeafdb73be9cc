package authgate

import "context"

type ctxKey string

const (
	ctxKeyPrincipal ctxKey = "authgate_principal"
	ctxKeyUserID    ctxKey = "authgate_user_id"
	ctxKeyClaims    ctxKey = "authgate_claims"
)

// WithPrincipal stores the resolved principal in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext extracts the resolved principal from the context.
// Returns nil when the request is unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	v, _ := ctx.Value(ctxKeyPrincipal).(*Principal)
	return v
}

// WithUserID stores the authenticated user ID in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// UserIDFromContext extracts the authenticated user ID from the context.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserID).(string)
	return v
}

// WithClaims stores the verified token claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// ClaimsFromContext extracts the verified token claims from the context.
func ClaimsFromContext(ctx context.Context) *Claims {
	v, _ := ctx.Value(ctxKeyClaims).(*Claims)
	return v
}
