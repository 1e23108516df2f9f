package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/repository"
)

// UserAttributes are the directory's view of an account.
type UserAttributes struct {
	UserID   string
	Email    string
	Role     Role
	Region   string
	Disabled bool
}

// UserDirectory looks up role and region attributes after authentication.
// Lookups for unknown accounts return an error matching repository.ErrNotFound.
type UserDirectory interface {
	ByID(ctx context.Context, userID string) (*UserAttributes, error)
	ByEmail(ctx context.Context, email string) (*UserAttributes, error)
}

// CachedUserDirectory is a read-through UserDirectory with a size and age bounded
// LRU cache in front of the user repository. Safe for concurrent use.
type CachedUserDirectory struct {
	users repository.UserRepository
	cache *expirable.LRU[string, UserAttributes]
}

var _ UserDirectory = (*CachedUserDirectory)(nil)

// NewCachedUserDirectory creates a directory caching up to size entries for ttl.
func NewCachedUserDirectory(users repository.UserRepository, size int, ttl time.Duration) *CachedUserDirectory {
	if size <= 0 {
		size = 1024
	}
	return &CachedUserDirectory{
		users: users,
		cache: expirable.NewLRU[string, UserAttributes](size, nil, ttl),
	}
}

func idKey(id string) string       { return "id:" + id }
func emailKey(email string) string { return "email:" + strings.ToLower(strings.TrimSpace(email)) }

// ByID implements UserDirectory.
func (d *CachedUserDirectory) ByID(ctx context.Context, userID string) (*UserAttributes, error) {
	if attrs, ok := d.cache.Get(idKey(userID)); ok {
		return &attrs, nil
	}
	user, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("directory lookup %s: %w", userID, err)
	}
	return d.remember(user)
}

// ByEmail implements UserDirectory.
func (d *CachedUserDirectory) ByEmail(ctx context.Context, email string) (*UserAttributes, error) {
	if attrs, ok := d.cache.Get(emailKey(email)); ok {
		return &attrs, nil
	}
	user, err := d.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("directory lookup %s: %w", email, err)
	}
	return d.remember(user)
}

// Invalidate drops cached entries for an account.
func (d *CachedUserDirectory) Invalidate(userID, email string) {
	d.cache.Remove(idKey(userID))
	if email != "" {
		d.cache.Remove(emailKey(email))
	}
}

func (d *CachedUserDirectory) remember(user *models.User) (*UserAttributes, error) {
	role, err := ParseRole(user.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user.ID, err)
	}
	attrs := UserAttributes{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     role,
		Region:   user.RegionValue(),
		Disabled: user.Disabled(),
	}
	d.cache.Add(idKey(attrs.UserID), attrs)
	d.cache.Add(emailKey(attrs.Email), attrs)
	return &attrs, nil
}

// IsNotFound reports whether a directory error means the account does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
