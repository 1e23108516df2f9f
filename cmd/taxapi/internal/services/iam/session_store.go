package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/repository"
)

// SessionClaims is what an established session contributes to a Principal.
type SessionClaims struct {
	SessionID string
	UserID    string
	Role      string // raw stored value, may be empty
	Email     string
}

// SessionStore resolves a request to an established session.
//
// Return values:
//   - (claims, nil): live session
//   - (nil, nil): no session cookie
//   - error matching ErrNoCredential: unknown, expired or revoked session
//   - error matching ErrSourceTimeout: lookup exceeded its budget
//   - error matching ErrInfrastructure: store unreachable
type SessionStore interface {
	Lookup(ctx context.Context, req AuthRequest) (*SessionClaims, error)
}

const (
	// DefaultSessionLookupTimeout bounds a session lookup when none is configured.
	DefaultSessionLookupTimeout = 3 * time.Second

	// sessionTouchInterval throttles last_used_at writes.
	sessionTouchInterval = time.Minute

	sessionTouchTimeout = 2 * time.Second
)

// DBSessionStore looks sessions up by the SHA-256 hash of the session cookie.
type DBSessionStore struct {
	sessions   repository.SessionRepository
	users      repository.UserRepository
	cookieName string
	timeout    time.Duration
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewDBSessionStore creates a store reading the session cookie selected by secureCookies.
func NewDBSessionStore(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	secureCookies bool,
	timeout time.Duration,
	logger logrus.FieldLogger,
) *DBSessionStore {
	if timeout <= 0 {
		timeout = DefaultSessionLookupTimeout
	}
	return &DBSessionStore{
		sessions:   sessions,
		users:      users,
		cookieName: auth.SessionCookie(secureCookies),
		timeout:    timeout,
		logger:     logger,
		now:        time.Now,
	}
}

// Lookup implements SessionStore.
func (s *DBSessionStore) Lookup(ctx context.Context, req AuthRequest) (*SessionClaims, error) {
	token := req.Cookie(s.cookieName)
	if token == "" {
		return nil, nil
	}
	// Opaque session tokens are hex. Dotted values are stateless tokens and
	// belong to the framework token verifier.
	if strings.Contains(token, ".") {
		return nil, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.sessions.GetByTokenHash(lookupCtx, auth.HashToken(token))
	if err != nil {
		return nil, s.classify(ctx, lookupCtx, "session lookup", err)
	}

	user := session.User
	if (user == nil || user.ID == "") && session.UserID != "" {
		user, err = s.users.GetByID(lookupCtx, session.UserID)
		if err != nil {
			return nil, s.classify(ctx, lookupCtx, "session user lookup", err)
		}
	}

	now := s.now()
	userID := ""
	if user != nil {
		userID = user.ID
	}
	if err := auth.ValidateSession(now, session.ExpiresAt, session.Revoked, userID, user.Disabled()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredential, err)
	}

	if now.Sub(session.LastUsedAt) >= sessionTouchInterval {
		s.touch(session.ID, now)
	}

	return &SessionClaims{
		SessionID: session.ID,
		UserID:    user.ID,
		Role:      user.Role,
		Email:     user.Email,
	}, nil
}

// classify maps a repository error to the store's error contract. A cancelled
// parent context is returned as is so resolution stops.
func (s *DBSessionStore) classify(parent, lookup context.Context, op string, err error) error {
	switch {
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s: %v", ErrNoCredential, op, err)
	case errors.Is(lookup.Err(), context.DeadlineExceeded):
		s.logger.WithFields(logrus.Fields{
			"op":      op,
			"timeout": s.timeout.String(),
		}).Warn("session store lookup timed out")
		return fmt.Errorf("%w: %s after %s", ErrSourceTimeout, op, s.timeout)
	default:
		return &InfrastructureError{Source: SourceSession, Err: fmt.Errorf("%s: %w", op, err)}
	}
}

// touch records session activity without holding up the request.
func (s *DBSessionStore) touch(sessionID string, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sessionTouchTimeout)
		defer cancel()
		if err := s.sessions.UpdateLastUsed(ctx, sessionID, at); err != nil {
			s.logger.WithError(err).WithField("session_id", sessionID).Debug("failed to update session last_used_at")
		}
	}()
}
