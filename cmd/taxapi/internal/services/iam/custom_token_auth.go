package iam

import (
	"context"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
)

// CustomTokenVerifier verifies the HS256 "token" cookie. It must fail closed:
// any signature, algorithm or expiry problem is an error.
// Implemented by auth.CustomTokenCodec.
type CustomTokenVerifier interface {
	Verify(token string) (*auth.CustomTokenClaims, error)
}

// CustomTokenAuthenticator authenticates requests with the "token" cookie.
type CustomTokenAuthenticator struct {
	verifier CustomTokenVerifier
}

// NewCustomTokenAuthenticator creates a new custom token authenticator.
func NewCustomTokenAuthenticator(verifier CustomTokenVerifier) *CustomTokenAuthenticator {
	return &CustomTokenAuthenticator{verifier: verifier}
}

// Source implements Authenticator.
func (a *CustomTokenAuthenticator) Source() CredentialSource { return SourceCustomToken }

// Authenticate implements Authenticator. An absent cookie is no credential; a bad
// token is an invalid credential and never aborts resolution.
func (a *CustomTokenAuthenticator) Authenticate(_ context.Context, req AuthRequest) (*Principal, error) {
	token := req.Cookie(auth.CustomTokenCookieName)
	if token == "" {
		return nil, nil
	}

	claims, err := a.verifier.Verify(token)
	if err != nil {
		return nil, &CredentialError{Source: SourceCustomToken, Err: err}
	}
	return principalFromCustomToken(claims)
}

func principalFromCustomToken(c *auth.CustomTokenClaims) (*Principal, error) {
	userID := c.UserID
	if userID == "" {
		userID = c.Subject
	}
	if userID == "" {
		return nil, &CredentialError{Source: SourceCustomToken, Reason: "missing userId"}
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return nil, &CredentialError{Source: SourceCustomToken, Reason: "role claim rejected", Err: err}
	}
	return &Principal{
		UserID: userID,
		Role:   role,
		Region: c.Region,
		Email:  c.Email,
		Source: SourceCustomToken,
	}, nil
}
