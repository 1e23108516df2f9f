package iam

import (
	"fmt"
	"strings"
)

// Role is one of the closed set of account roles.
type Role string

const (
	RoleUser        Role = "user"
	RoleAdmin       Role = "admin"
	RoleRegionAdmin Role = "regionAdmin"
)

// Roles lists every valid role.
var Roles = []Role{RoleUser, RoleAdmin, RoleRegionAdmin}

// Valid reports whether r is in the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleRegionAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// NormalizeRole maps an empty or blank role claim to RoleUser. Other values are
// returned trimmed and unchecked.
func NormalizeRole(raw string) Role {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return RoleUser
	}
	return Role(raw)
}

// ParseRole normalizes raw and checks it against the closed set. Values outside
// the set are data errors reported with ErrUnknownRole; they are never coerced.
func ParseRole(raw string) (Role, error) {
	r := NormalizeRole(raw)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return r, nil
}
