package iam

import "fmt"

// RequireRole checks that p holds one of roles.
func RequireRole(p *Principal, roles ...Role) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if p.HasRole(roles...) {
		return nil
	}
	return &InsufficientRoleError{Have: p.Role, Want: roles}
}

// RequireRegion checks that p may act on a resource owned by resourceRegion.
//
// Admins may act anywhere. Region admins may act on their own region only, and a
// region admin without a region fails with ErrMisconfiguredRegion rather than a
// plain denial so the account can be fixed. Users never pass.
func RequireRegion(p *Principal, resourceRegion string) error {
	if p == nil {
		return ErrUnauthenticated
	}
	switch p.Role {
	case RoleAdmin:
		return nil
	case RoleRegionAdmin:
		if p.Region == "" {
			return fmt.Errorf("%w: user %s", ErrMisconfiguredRegion, p.UserID)
		}
		if p.Region != resourceRegion {
			return fmt.Errorf("%w: region %q is outside assigned region %q", ErrInsufficientRole, resourceRegion, p.Region)
		}
		return nil
	default:
		return &InsufficientRoleError{Have: p.Role, Want: []Role{RoleAdmin, RoleRegionAdmin}}
	}
}
