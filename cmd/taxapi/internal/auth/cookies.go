package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

const (
	// CustomTokenCookieName carries the HS256 token issued by the login endpoint.
	CustomTokenCookieName = "token"

	// SessionCookieName carries the opaque session token (plain HTTP deployments).
	SessionCookieName = "taxdesk.session-token"

	// SecureSessionCookieName is the session cookie name used behind HTTPS.
	SecureSessionCookieName = "__Secure-" + SessionCookieName

	// SessionTokenLength is the number of random bytes in a session token.
	SessionTokenLength = 32
)

// SessionCookie returns the session cookie name for the deployment mode.
func SessionCookie(secure bool) string {
	if secure {
		return SecureSessionCookieName
	}
	return SessionCookieName
}

// SessionCookieNames lists both session cookie names, secure first.
func SessionCookieNames() []string {
	return []string{SecureSessionCookieName, SessionCookieName}
}

// FindCookie returns the value of the first cookie named name, or "".
func FindCookie(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c != nil && c.Name == name {
			return c.Value
		}
	}
	return ""
}

// GenerateSessionToken returns a random session token and its storage hash.
func GenerateSessionToken() (token string, tokenHash string, err error) {
	buf := make([]byte, SessionTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate session token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, HashToken(token), nil
}

// HashToken creates a SHA256 hash of a token string.
// Session tokens are stored and looked up by this hash, never in clear.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
