package iam

// CredentialSource names the credential that produced a Principal.
type CredentialSource string

const (
	SourceSession        CredentialSource = "session"
	SourceFrameworkToken CredentialSource = "framework_token"
	SourceCustomToken    CredentialSource = "custom_token"

	// SourceDiagnostic marks Diagnoser output. It never appears on a Principal
	// returned by AuthenticateRequest.
	SourceDiagnostic CredentialSource = "diagnostic"
)

// Principal is the identity resolved for one request.
//
// A Principal is a value: it is built fresh per request from exactly one
// credential source and never mutated afterwards. Helpers that refine it, such as
// WithRegion, return a modified copy.
type Principal struct {
	// UserID is the opaque, stable account identifier.
	UserID string

	// Role is always one of Roles.
	Role Role

	// Region is set only for region admins. Empty means unassigned, which
	// RequireRegion reports as ErrMisconfiguredRegion.
	Region string

	// Email is set when the credential source exposed it.
	Email string

	// Source names the credential that produced this principal.
	Source CredentialSource

	// SessionID references the server-side session when Source is SourceSession.
	SessionID string
}

// HasRole reports whether the principal holds any of roles.
func (p *Principal) HasRole(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// WithRegion returns a copy of p with Region set.
func (p Principal) WithRegion(region string) *Principal {
	p.Region = region
	return &p
}

// Clone returns a copy of p, or nil.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
