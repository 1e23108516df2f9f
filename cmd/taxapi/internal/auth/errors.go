package auth

import "errors"

// ErrTokenInvalid is the root of every token verification failure. Callers that
// only care whether a token can be trusted check errors.Is(err, ErrTokenInvalid).
var ErrTokenInvalid = errors.New("token invalid")

var (
	ErrTokenMalformed = wrapInvalid("malformed")
	ErrTokenSignature = wrapInvalid("signature mismatch")
	ErrTokenExpired   = wrapInvalid("expired")
	ErrTokenClaims    = wrapInvalid("claims rejected")
)

type invalidTokenError struct{ reason string }

func (e *invalidTokenError) Error() string { return "token invalid: " + e.reason }
func (e *invalidTokenError) Unwrap() error { return ErrTokenInvalid }

func wrapInvalid(reason string) error { return &invalidTokenError{reason: reason} }
