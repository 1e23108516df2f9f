package iam

import (
	"fmt"

	"github.com/casbin/casbin/v2"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
)

// Authorizer answers route-level permission questions from the role policy table.
// It never mutates enforcer state and is safe for concurrent use.
type Authorizer struct {
	enforcer casbin.IEnforcer
}

// NewAuthorizer loads the embedded role model and policy.
func NewAuthorizer() (*Authorizer, error) {
	enforcer, err := auth.InitEnforcer()
	if err != nil {
		return nil, err
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// Allowed reports whether role may perform action on object.
func (a *Authorizer) Allowed(role Role, object, action string) (bool, error) {
	if !role.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	ok, err := a.enforcer.Enforce(string(role), object, action)
	if err != nil {
		return false, fmt.Errorf("enforce %s %s %s: %w", role, object, action, err)
	}
	return ok, nil
}

// Check is Allowed for a principal, returning ErrUnauthenticated or an error
// matching ErrInsufficientRole on denial.
func (a *Authorizer) Check(p *Principal, object, action string) error {
	if p == nil {
		return ErrUnauthenticated
	}
	ok, err := a.Allowed(p.Role, object, action)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: role %q may not %s %s", ErrInsufficientRole, p.Role, action, object)
	}
	return nil
}
