package iam

import (
	"context"
	"fmt"
)

// SessionAuthenticator authenticates requests with an established server-side session.
type SessionAuthenticator struct {
	store SessionStore
}

// NewSessionAuthenticator creates a new session authenticator.
func NewSessionAuthenticator(store SessionStore) *SessionAuthenticator {
	return &SessionAuthenticator{store: store}
}

// Source implements Authenticator.
func (a *SessionAuthenticator) Source() CredentialSource { return SourceSession }

// Authenticate implements Authenticator. A session without a role yields RoleUser.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, req AuthRequest) (*Principal, error) {
	claims, err := a.store.Lookup(ctx, req)
	if err != nil || claims == nil {
		return nil, err
	}
	return principalFromSession(claims)
}

func principalFromSession(c *SessionClaims) (*Principal, error) {
	if c.UserID == "" {
		return nil, fmt.Errorf("%w: session without user reference", ErrNoCredential)
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return nil, &CredentialError{Source: SourceSession, Reason: "stored role rejected", Err: err}
	}
	return &Principal{
		UserID:    c.UserID,
		Role:      role,
		Email:     c.Email,
		Source:    SourceSession,
		SessionID: c.SessionID,
	}, nil
}
