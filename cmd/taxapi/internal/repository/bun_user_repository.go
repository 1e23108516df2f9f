package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/bunx"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
)

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db *bun.DB
}

var _ UserRepository = (*BunUserRepository)(nil)

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user. ID and timestamps are filled when empty.
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = bunx.NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	if _, err := r.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by their ID
func (r *BunUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("u.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by ID: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *BunUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("u.email = ?", strings.ToLower(strings.TrimSpace(email))).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// List returns users matching filter ordered by email.
func (r *BunUserRepository) List(ctx context.Context, filter UserFilter) ([]models.User, error) {
	var users []models.User
	q := r.db.NewSelect().Model(&users).Order("u.email ASC")
	if filter.Role != "" {
		q = q.Where("u.role = ?", filter.Role)
	}
	if filter.Region != "" {
		q = q.Where("u.region = ?", filter.Region)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateLastLogin records a successful password login.
func (r *BunUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return requireAffected(res, "user", id)
}

// SetDisabled disables or re-enables an account.
func (r *BunUserRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	var disabledAt *time.Time
	now := time.Now().UTC()
	if disabled {
		disabledAt = &now
	}
	res, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("disabled_at = ?", disabledAt).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set user disabled: %w", err)
	}
	return requireAffected(res, "user", id)
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
