package server

import (
	"context"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

// iamService defines the exact IAM methods used by server handlers and the
// route guards they are wrapped in.
type iamService interface {
	AuthenticateRequest(ctx context.Context, req iam.AuthRequest) (*iam.Principal, error)
	ResolveRegion(ctx context.Context, p *iam.Principal) (*iam.Principal, error)
	Authorize(ctx context.Context, p *iam.Principal, object, action string) error
	Login(ctx context.Context, email, password string) (*iam.LoginResult, error)
	Logout(ctx context.Context, p *iam.Principal) error
	Diagnose(req iam.AuthRequest) *iam.DiagnosticReport
}

// Compile-time assertion: iam.Service must implement iamService.
var _ iamService = (iam.Service)(nil)
