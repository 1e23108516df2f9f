package iam

import (
	"context"
	"errors"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
)

// FrameworkTokenVerifier decrypts and verifies a framework session token.
// Implemented by auth.FrameworkTokenCodec.
type FrameworkTokenVerifier interface {
	Decode(token string) (*auth.FrameworkTokenClaims, error)
}

// FrameworkTokenAuthenticator authenticates requests carrying a stateless framework
// token in the session cookie.
type FrameworkTokenAuthenticator struct {
	verifier   FrameworkTokenVerifier
	cookieName string
}

// NewFrameworkTokenAuthenticator reads the session cookie selected by secureCookies.
func NewFrameworkTokenAuthenticator(verifier FrameworkTokenVerifier, secureCookies bool) *FrameworkTokenAuthenticator {
	return &FrameworkTokenAuthenticator{
		verifier:   verifier,
		cookieName: auth.SessionCookie(secureCookies),
	}
}

// Source implements Authenticator.
func (a *FrameworkTokenAuthenticator) Source() CredentialSource { return SourceFrameworkToken }

// Authenticate implements Authenticator. A token without a subject is no credential.
func (a *FrameworkTokenAuthenticator) Authenticate(_ context.Context, req AuthRequest) (*Principal, error) {
	token := req.Cookie(a.cookieName)
	if token == "" {
		return nil, nil
	}

	claims, err := a.verifier.Decode(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenMalformed) {
			// Not an encrypted token at all, e.g. an opaque session token.
			return nil, nil
		}
		return nil, &CredentialError{Source: SourceFrameworkToken, Err: err}
	}
	return principalFromFrameworkToken(claims)
}

func principalFromFrameworkToken(c *auth.FrameworkTokenClaims) (*Principal, error) {
	if c.Subject == "" {
		return nil, nil
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return nil, &CredentialError{Source: SourceFrameworkToken, Reason: "role claim rejected", Err: err}
	}
	return &Principal{
		UserID: c.Subject,
		Role:   role,
		Email:  c.Email,
		Source: SourceFrameworkToken,
	}, nil
}
