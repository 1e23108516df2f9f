package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is an account that can sign in to taxdesk.
// Role holds one of user, admin or regionAdmin. An empty value is read as user.
// Region is only meaningful for regionAdmin accounts.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string     `bun:"id,pk"`
	Email        string     `bun:"email,notnull,unique"`
	Name         string     `bun:"name"`
	Role         string     `bun:"role,notnull"`
	Region       *string    `bun:"region"`
	PasswordHash *string    `bun:"password_hash"` // bcrypt
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
	LastLoginAt  *time.Time `bun:"last_login_at"`
	DisabledAt   *time.Time `bun:"disabled_at"`
}

// Disabled reports whether the account has been disabled.
func (u *User) Disabled() bool {
	return u != nil && u.DisabledAt != nil
}

// RegionValue returns the assigned region or "".
func (u *User) RegionValue() string {
	if u == nil || u.Region == nil {
		return ""
	}
	return *u.Region
}

// Session is a server-tracked login keyed by the hash of the session cookie value.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID         string    `bun:"id,pk"`
	UserID     string    `bun:"user_id,notnull"` // FK to users(id)
	TokenHash  string    `bun:"token_hash,notnull,unique"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	LastUsedAt time.Time `bun:"last_used_at,notnull"`
	UserAgent  *string   `bun:"user_agent"`
	IPAddress  *string   `bun:"ip_address"`
	Revoked    bool      `bun:"revoked,notnull,default:false"`

	User *User `bun:"rel:belongs-to,join:user_id=id"`
}
