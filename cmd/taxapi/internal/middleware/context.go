package middleware

import (
	"context"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

type principalContextKey struct{}

// SetPrincipal stores the authenticated principal in ctx.
func SetPrincipal(ctx context.Context, p *iam.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal set by MultiAuthMiddleware.
func PrincipalFromContext(ctx context.Context) (*iam.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*iam.Principal)
	return p, ok && p != nil
}
