package auth

import (
	"errors"
	"time"
)

// DefaultSessionDuration is the lifetime of sessions created without an explicit TTL.
const DefaultSessionDuration = 30 * 24 * time.Hour

var (
	ErrSessionExpired   = errors.New("session expired")
	ErrSessionRevoked   = errors.New("session revoked")
	ErrIdentityDisabled = errors.New("identity disabled")
	ErrSessionNoUser    = errors.New("session has no user reference")
)

// ValidateSession checks expiry, revocation and the owning identity.
func ValidateSession(now, expiresAt time.Time, revoked bool, userID string, identityDisabled bool) error {
	if userID == "" {
		return ErrSessionNoUser
	}
	if !now.Before(expiresAt) {
		return ErrSessionExpired
	}
	if revoked {
		return ErrSessionRevoked
	}
	if identityDisabled {
		return ErrIdentityDisabled
	}
	return nil
}
