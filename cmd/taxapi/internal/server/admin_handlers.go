package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/middleware"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

// OverviewResponse describes the scope of the admin overview for the caller.
type OverviewResponse struct {
	Principal PrincipalResponse `json:"principal"`
	Scope     string            `json:"scope"` // "all" or a region
}

// RegionResponse confirms access to one region.
type RegionResponse struct {
	Region    string            `json:"region"`
	Principal PrincipalResponse `json:"principal"`
}

// HandleAdminOverview handles GET /api/admin/overview.
//
// Authorization: admin or regionAdmin. Region admins are scoped to their
// region and must have one assigned.
func HandleAdminOverview(svc iamService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			middleware.WriteAuthzError(w, iam.ErrUnauthenticated)
			return
		}

		resolved, err := svc.ResolveRegion(r.Context(), principal)
		if err != nil {
			middleware.WriteAuthzError(w, err)
			return
		}

		scope := "all"
		if resolved.Role == iam.RoleRegionAdmin {
			if resolved.Region == "" {
				middleware.WriteAuthzError(w, iam.ErrMisconfiguredRegion)
				return
			}
			scope = resolved.Region
		}

		middleware.WriteJSON(w, http.StatusOK, OverviewResponse{
			Principal: principalResponse(resolved),
			Scope:     scope,
		})
	}
}

// HandleRegion handles GET /api/admin/regions/{region}. Route guards have
// already checked the region.
func HandleRegion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			middleware.WriteAuthzError(w, iam.ErrUnauthenticated)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, RegionResponse{
			Region:    chi.URLParam(r, "region"),
			Principal: principalResponse(principal),
		})
	}
}

// HandleDiagnoseAuth handles GET /debug/auth. It reports what the session
// cookie contains and grants nothing.
func HandleDiagnoseAuth(svc iamService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, svc.Diagnose(iam.NewAuthRequest(r)))
	}
}
