package iam

import (
	"context"
	"time"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/config"
)

// Service is the facade the HTTP layer uses for identity and access decisions.
type Service interface {
	// AuthenticateRequest tries the credential sources in priority order and
	// returns the first Principal produced.
	//
	// Returns:
	//   - (principal, nil): authenticated
	//   - (nil, nil): no source produced a principal (unauthenticated)
	//   - (nil, err): err matches ErrInfrastructure, or is the context error
	//     when the caller went away
	AuthenticateRequest(ctx context.Context, req AuthRequest) (*Principal, error)

	// ResolveRegion fills Region for session and framework token region admins,
	// whose credentials carry no region claim. Other principals are returned
	// unchanged. Never mutates p.
	ResolveRegion(ctx context.Context, p *Principal) (*Principal, error)

	// Authorize checks a route-level permission from the role policy table.
	Authorize(ctx context.Context, p *Principal, object, action string) error

	// Login checks an email and password and issues a custom token for the account.
	Login(ctx context.Context, email, password string) (*LoginResult, error)

	// Logout revokes the server-side session behind p, if any.
	Logout(ctx context.Context, p *Principal) error

	// Diagnose reports on the session cookie without granting anything.
	Diagnose(req AuthRequest) *DiagnosticReport
}

// LoginResult is a successful password login.
type LoginResult struct {
	Principal *Principal
	Token     string
	ExpiresAt time.Time
}

// AuthenticatorConfig carries the secrets and limits the credential sources need.
// SessionSecret and CustomTokenSecret must differ.
type AuthenticatorConfig struct {
	SessionSecret        string
	CustomTokenSecret    string
	SecureCookies        bool
	SessionLookupTimeout time.Duration
	CustomTokenTTL       time.Duration
}

// NewAuthenticatorConfig extracts the authenticator settings from the application config.
func NewAuthenticatorConfig(cfg *config.Config) AuthenticatorConfig {
	return AuthenticatorConfig{
		SessionSecret:        cfg.Auth.SessionSecret,
		CustomTokenSecret:    cfg.Auth.CustomTokenSecret,
		SecureCookies:        cfg.Auth.SecureCookies,
		SessionLookupTimeout: cfg.Auth.SessionLookupTimeout,
		CustomTokenTTL:       cfg.Auth.CustomTokenTTL,
	}
}
