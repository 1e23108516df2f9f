package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/logging"
	taxmiddleware "github.com/taxdesk/taxdesk/cmd/taxapi/internal/middleware"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

// RouterOptions controls the construction of the taxapi HTTP router.
// IAMService is required; other fields have defaults.
type RouterOptions struct {
	IAMService    iamService
	Logger        logrus.FieldLogger
	SecureCookies bool

	// Diagnostics mounts GET /debug/auth. Keep off in production.
	Diagnostics bool

	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, request
// authentication and the taxapi handlers mounted.
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	svc := opts.IAMService
	r.Post("/api/auth/login", HandleLogin(svc, opts.SecureCookies, logger))
	r.Post("/api/auth/logout", HandleLogout(svc, opts.SecureCookies, logger))

	r.Group(func(r chi.Router) {
		r.Use(taxmiddleware.MultiAuthMiddleware(svc, logger))

		r.With(taxmiddleware.RequireAuthenticated).Get("/api/auth/whoami", HandleWhoAmI(svc))

		r.Route("/api/admin", func(r chi.Router) {
			r.With(taxmiddleware.RequireRoles(iam.RoleAdmin, iam.RoleRegionAdmin)).
				Get("/overview", HandleAdminOverview(svc))
			r.With(
				taxmiddleware.RequirePermission(svc, auth.ObjectRegion, auth.ActionRead),
				taxmiddleware.RequireRegion(svc, "region"),
			).Get("/regions/{region}", HandleRegion())
		})
	})

	if opts.Diagnostics {
		logger.Warn("diagnostics enabled: mounting /debug/auth")
		r.Get("/debug/auth", HandleDiagnoseAuth(svc))
	}

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}

// NewH2CHandler wraps the router with an h2c server to provide HTTP/2 over
// cleartext behind TLS-terminating proxies.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
