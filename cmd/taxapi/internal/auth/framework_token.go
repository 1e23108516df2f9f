package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// frameworkKeyInfo is the HKDF info string for the session token encryption key.
const frameworkKeyInfo = "taxdesk Generated Encryption Key"

// FrameworkTokenClaims is the decrypted payload of a framework session token.
type FrameworkTokenClaims struct {
	Subject   string  `mapstructure:"sub"`
	Role      string  `mapstructure:"role"`
	Email     string  `mapstructure:"email"`
	Name      string  `mapstructure:"name"`
	IssuedAt  float64 `mapstructure:"iat"`
	ExpiresAt float64 `mapstructure:"exp"`
}

// Expiry returns the exp claim as a time, or the zero time when unset.
func (c FrameworkTokenClaims) Expiry() time.Time {
	if c.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(int64(c.ExpiresAt), 0)
}

// FrameworkTokenCodec encrypts and decrypts stateless session tokens (JWE, dir + A256GCM)
// with a key derived from the session secret.
type FrameworkTokenCodec struct {
	key []byte
	now func() time.Time
}

// NewFrameworkTokenCodec derives the encryption key from secret.
func NewFrameworkTokenCodec(secret string) (*FrameworkTokenCodec, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	key, err := DeriveEncryptionKey(secret)
	if err != nil {
		return nil, err
	}
	return &FrameworkTokenCodec{key: key, now: time.Now}, nil
}

// WithClock replaces the codec's time source. Used by tests.
func (c *FrameworkTokenCodec) WithClock(now func() time.Time) *FrameworkTokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// DeriveEncryptionKey derives the 32 byte A256GCM key from the session secret.
func DeriveEncryptionKey(secret string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(frameworkKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	return key, nil
}

// Encode encrypts claims with an expiry ttl from now.
func (c *FrameworkTokenCodec) Encode(claims FrameworkTokenClaims, ttl time.Duration) (string, error) {
	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: c.key},
		(&jose.EncrypterOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("create encrypter: %w", err)
	}

	now := c.now()
	payload := map[string]any{
		"sub": claims.Subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	}
	if claims.Role != "" {
		payload["role"] = claims.Role
	}
	if claims.Email != "" {
		payload["email"] = claims.Email
	}
	if claims.Name != "" {
		payload["name"] = claims.Name
	}

	token, err := josejwt.Encrypted(enc).Claims(payload).Serialize()
	if err != nil {
		return "", fmt.Errorf("encrypt session token: %w", err)
	}
	return token, nil
}

// Decode decrypts token and checks its expiry, which is required. Every failure
// wraps ErrTokenInvalid.
func (c *FrameworkTokenCodec) Decode(token string) (*FrameworkTokenClaims, error) {
	parsed, err := josejwt.ParseEncrypted(token,
		[]jose.KeyAlgorithm{jose.DIRECT},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	raw := map[string]any{}
	if err := parsed.Claims(c.key, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenSignature, err)
	}

	var claims FrameworkTokenClaims
	if err := DecodeClaims(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenClaims, err)
	}

	exp := claims.Expiry()
	if exp.IsZero() {
		return nil, fmt.Errorf("%w: missing exp", ErrTokenClaims)
	}
	if !c.now().Before(exp) {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}
