package iam

import (
	"context"
	"net/http"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
)

// Authenticator validates one kind of credential.
//
// Return values:
//   - (principal, nil): authenticated, resolution stops
//   - (nil, nil) or an error matching ErrNoCredential: nothing presented, try next
//   - error matching ErrInvalidCredential or ErrSourceTimeout: source failed, try next
//   - any other error: resolution aborts; it is reported as ErrInfrastructure
type Authenticator interface {
	// Source names the credential this authenticator reads.
	Source() CredentialSource

	// Authenticate validates credentials and returns a fresh Principal.
	Authenticate(ctx context.Context, req AuthRequest) (*Principal, error)
}

// AuthRequest carries the parts of an HTTP request authenticators read.
type AuthRequest struct {
	// Headers contains HTTP headers (including Cookie)
	Headers http.Header

	// Cookies contains parsed cookies
	Cookies []*http.Cookie
}

// NewAuthRequest builds an AuthRequest from an HTTP request.
func NewAuthRequest(r *http.Request) AuthRequest {
	return AuthRequest{
		Headers: r.Header.Clone(),
		Cookies: r.Cookies(),
	}
}

// Cookie returns the value of the named cookie, or "".
func (r AuthRequest) Cookie(name string) string {
	return auth.FindCookie(r.Cookies, name)
}
