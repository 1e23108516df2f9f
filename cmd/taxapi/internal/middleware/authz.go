package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

// PermissionChecker is the part of iam.Service used by route guards.
type PermissionChecker interface {
	Authorize(ctx context.Context, p *iam.Principal, object, action string) error
}

// RegionResolver fills the region of region admins whose credential carries none.
type RegionResolver interface {
	ResolveRegion(ctx context.Context, p *iam.Principal) (*iam.Principal, error)
}

// RequireAuthenticated rejects requests without a principal with 401.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			WriteAuthzError(w, iam.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRoles admits principals holding any of roles.
func RequireRoles(roles ...iam.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFromContext(r.Context())
			if err := iam.RequireRole(p, roles...); err != nil {
				WriteAuthzError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission admits principals whose role may perform action on object.
func RequirePermission(checker PermissionChecker, object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFromContext(r.Context())
			if err := checker.Authorize(r.Context(), p, object, action); err != nil {
				WriteAuthzError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRegion checks the principal against the region named by the chi URL
// parameter param. Region admins from sessions and framework tokens get their
// region from the directory first; the resolved principal replaces the one in
// the request context.
func RequireRegion(resolver RegionResolver, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p, ok := PrincipalFromContext(ctx)
			if !ok {
				WriteAuthzError(w, iam.ErrUnauthenticated)
				return
			}

			resolved, err := resolver.ResolveRegion(ctx, p)
			if err != nil {
				WriteAuthzError(w, err)
				return
			}
			if err := iam.RequireRegion(resolved, chi.URLParam(r, param)); err != nil {
				WriteAuthzError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetPrincipal(ctx, resolved)))
		})
	}
}
