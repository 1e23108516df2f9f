package iam

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCredential means a source found nothing usable: no cookie, or a
	// session that is unknown, expired, revoked or belongs to a disabled account.
	ErrNoCredential = errors.New("no credential")

	// ErrInvalidCredential means a source positively identified a malformed,
	// tampered or expired token. Resolution moves on to the next source.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrSourceTimeout means a network-backed source did not answer within its
	// budget. Resolution moves on to the next source.
	ErrSourceTimeout = errors.New("credential source timed out")

	// ErrInfrastructure means a source's backing store is unreachable. It is the
	// only condition that aborts resolution.
	ErrInfrastructure = errors.New("credential source unavailable")

	// ErrUnauthenticated is returned by authorization helpers when the request
	// has no principal.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInsufficientRole means a principal was resolved but may not perform the
	// operation.
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrMisconfiguredRegion means a region admin has no region assigned while a
	// region-scoped check requires one.
	ErrMisconfiguredRegion = errors.New("region admin not assigned to a region")

	// ErrUnknownRole means a stored or claimed role is outside the closed set.
	ErrUnknownRole = errors.New("unknown role")

	// ErrInvalidLogin is returned by Login for an unknown email, a wrong password
	// or a disabled account. The cases are not distinguished.
	ErrInvalidLogin = errors.New("invalid email or password")
)

// CredentialError reports an invalid credential from one source. It matches
// ErrInvalidCredential and unwraps to the underlying verification error.
type CredentialError struct {
	Source CredentialSource
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	msg := fmt.Sprintf("%s: invalid credential", e.Source)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Is(target error) bool { return target == ErrInvalidCredential }
func (e *CredentialError) Unwrap() error        { return e.Err }

// InfrastructureError reports an unreachable backing store. It matches
// ErrInfrastructure and unwraps to the store error.
type InfrastructureError struct {
	Source CredentialSource
	Err    error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: credential source unavailable: %v", e.Source, e.Err)
}

func (e *InfrastructureError) Is(target error) bool { return target == ErrInfrastructure }
func (e *InfrastructureError) Unwrap() error        { return e.Err }

// InsufficientRoleError reports the role a principal has and the roles an
// operation accepts. It matches ErrInsufficientRole.
type InsufficientRoleError struct {
	Have Role
	Want []Role
}

func (e *InsufficientRoleError) Error() string {
	want := make([]string, len(e.Want))
	for i, r := range e.Want {
		want[i] = string(r)
	}
	return fmt.Sprintf("insufficient role: have %q, want one of [%s]", e.Have, strings.Join(want, ", "))
}

func (e *InsufficientRoleError) Is(target error) bool { return target == ErrInsufficientRole }
