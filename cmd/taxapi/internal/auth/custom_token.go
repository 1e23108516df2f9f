package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomTokenClaims is the payload of the "token" cookie.
type CustomTokenClaims struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
	Region string `json:"region,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// CustomTokenCodec issues and verifies HS256 tokens signed with the custom token secret.
type CustomTokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewCustomTokenCodec returns a codec keyed by secret.
func NewCustomTokenCodec(secret string) (*CustomTokenCodec, error) {
	if secret == "" {
		return nil, errors.New("custom token secret is empty")
	}
	return &CustomTokenCodec{secret: []byte(secret), now: time.Now}, nil
}

// WithClock replaces the codec's time source. Used by tests.
func (c *CustomTokenCodec) WithClock(now func() time.Time) *CustomTokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// Issue signs claims with an expiry ttl from now. Subject defaults to UserID.
func (c *CustomTokenCodec) Issue(claims CustomTokenClaims, ttl time.Duration) (string, error) {
	if claims.UserID == "" {
		return "", errors.New("custom token requires a user id")
	}
	now := c.now()
	if claims.Subject == "" {
		claims.Subject = claims.UserID
	}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign custom token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry. Every failure wraps ErrTokenInvalid.
func (c *CustomTokenCodec) Verify(token string) (*CustomTokenClaims, error) {
	claims := &CustomTokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId and sub", ErrTokenClaims)
	}
	return claims, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrTokenSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenClaims, err)
	}
}
