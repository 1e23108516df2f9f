package repository

import (
	"context"
	"errors"
	"time"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
)

// ErrNotFound is returned when a lookup matches no row. Any other error from a
// repository means the backing store could not answer.
var ErrNotFound = errors.New("not found")

// UserFilter narrows ListUsers. Empty fields match everything.
type UserFilter struct {
	Role   string
	Region string
}

// UserRepository defines the data access interface for accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, filter UserFilter) ([]models.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetDisabled(ctx context.Context, id string, disabled bool) error
}

// SessionRepository defines the data access interface for server-side sessions.
// GetByTokenHash may populate Session.User; callers must not rely on it.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, id string) error
	RevokeByUserID(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
