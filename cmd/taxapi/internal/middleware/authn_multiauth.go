package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

// Authenticator is the part of iam.Service the authentication middleware needs.
type Authenticator interface {
	AuthenticateRequest(ctx context.Context, req iam.AuthRequest) (*iam.Principal, error)
}

// MultiAuthMiddleware resolves the request principal through the IAM service.
//
// Authentication flow:
//   - session cookie, then framework token, then the "token" cookie
//   - first source that produces a principal wins
//   - no principal: the request continues unauthenticated and route guards decide
//   - credential store unreachable: 503, the request never reaches a handler
//
// A request whose context is cancelled or past its deadline mid-resolution gets
// no response.
func MultiAuthMiddleware(authenticator Authenticator, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			principal, err := authenticator.AuthenticateRequest(ctx, iam.NewAuthRequest(r))
			if err != nil {
				if abandoned(ctx, err) {
					logger.WithError(err).Debug("request context ended during authentication")
					return
				}
				logger.WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
				}).WithError(err).Error("authentication unavailable")
				WriteAuthzError(w, err)
				return
			}

			if principal != nil {
				ctx = SetPrincipal(ctx, principal)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// abandoned reports whether err means the request itself ended rather than a
// credential source failing.
func abandoned(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ctx.Err() != nil
}
