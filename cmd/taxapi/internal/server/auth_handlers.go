package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/middleware"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PrincipalResponse is the JSON view of a principal.
type PrincipalResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Region string `json:"region,omitempty"`
	Email  string `json:"email,omitempty"`
	Source string `json:"source"`
}

// LoginResponse is the response from POST /api/auth/login.
type LoginResponse struct {
	User      PrincipalResponse `json:"user"`
	ExpiresAt int64             `json:"expires_at"`
}

func principalResponse(p *iam.Principal) PrincipalResponse {
	return PrincipalResponse{
		UserID: p.UserID,
		Role:   string(p.Role),
		Region: p.Region,
		Email:  p.Email,
		Source: string(p.Source),
	}
}

// HandleLogin checks email and password and sets the "token" cookie.
func HandleLogin(svc iamService, secureCookies bool, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			middleware.WriteError(w, http.StatusBadRequest, "missing email or password")
			return
		}

		result, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, iam.ErrInvalidLogin) {
				middleware.WriteError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			logger.WithError(err).Error("login failed")
			middleware.WriteAuthzError(w, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.CustomTokenCookieName,
			Value:    result.Token,
			Path:     "/",
			Expires:  result.ExpiresAt,
			HttpOnly: true,
			Secure:   secureCookies,
			SameSite: http.SameSiteLaxMode,
		})

		logger.WithField("user_id", result.Principal.UserID).Info("user logged in")
		middleware.WriteJSON(w, http.StatusOK, LoginResponse{
			User:      principalResponse(result.Principal),
			ExpiresAt: result.ExpiresAt.UnixMilli(),
		})
	}
}

// HandleLogout clears both credential cookies and revokes the server-side
// session, if any. It resolves the caller itself so that the cookies are cleared
// even while a credential store is unreachable.
func HandleLogout(svc iamService, secureCookies bool, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := svc.AuthenticateRequest(r.Context(), iam.NewAuthRequest(r))
		if err != nil {
			logger.WithError(err).Warn("logout could not resolve credentials, clearing cookies only")
			principal = nil
		}

		for _, name := range []string{auth.CustomTokenCookieName, auth.SessionCookie(secureCookies)} {
			http.SetCookie(w, &http.Cookie{
				Name:     name,
				Value:    "",
				Path:     "/",
				Expires:  time.Unix(0, 0),
				MaxAge:   -1,
				HttpOnly: true,
				Secure:   secureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}

		if principal != nil {
			if err := svc.Logout(r.Context(), principal); err != nil {
				logger.WithError(err).WithField("user_id", principal.UserID).Error("failed to revoke session")
				middleware.WriteError(w, http.StatusInternalServerError, "failed to revoke session")
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
	}
}

// HandleWhoAmI returns the authenticated principal. Region admins get their
// directory region when the credential carried none.
func HandleWhoAmI(svc iamService) http.HandlerFunc {
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
		middleware.WriteJSON(w, http.StatusOK, principalResponse(resolved))
	}
}
