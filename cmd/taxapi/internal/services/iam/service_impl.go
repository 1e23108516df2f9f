package iam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/repository"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/telemetry"
)

const tracerName = telemetry.TracerIAM

// iamService implements Service.
type iamService struct {
	authenticators []Authenticator
	directory      UserDirectory
	authorizer     *Authorizer
	diagnoser      *Diagnoser
	users          repository.UserRepository
	sessions       repository.SessionRepository
	customTokens   *auth.CustomTokenCodec
	customTokenTTL time.Duration
	metrics        *telemetry.AuthMetrics
	logger         logrus.FieldLogger
	now            func() time.Time
}

// ServiceDependencies groups the collaborators of the IAM service.
type ServiceDependencies struct {
	Users     repository.UserRepository
	Sessions  repository.SessionRepository
	Directory UserDirectory
	Metrics   *telemetry.AuthMetrics // optional
	Logger    logrus.FieldLogger
}

// NewIAMService builds the service and its ordered authenticator chain:
// session, framework token, custom token.
func NewIAMService(deps ServiceDependencies, cfg AuthenticatorConfig) (Service, error) {
	if cfg.SessionSecret == cfg.CustomTokenSecret {
		return nil, errors.New("session and custom token secrets must differ")
	}
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}

	frameworkTokens, err := auth.NewFrameworkTokenCodec(cfg.SessionSecret)
	if err != nil {
		return nil, fmt.Errorf("framework token codec: %w", err)
	}
	customTokens, err := auth.NewCustomTokenCodec(cfg.CustomTokenSecret)
	if err != nil {
		return nil, fmt.Errorf("custom token codec: %w", err)
	}
	authorizer, err := NewAuthorizer()
	if err != nil {
		return nil, fmt.Errorf("authorizer: %w", err)
	}

	logger := deps.Logger.WithField("component", "iam")
	store := NewDBSessionStore(deps.Sessions, deps.Users, cfg.SecureCookies, cfg.SessionLookupTimeout, logger)

	ttl := cfg.CustomTokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &iamService{
		authenticators: []Authenticator{
			NewSessionAuthenticator(store),
			NewFrameworkTokenAuthenticator(frameworkTokens, cfg.SecureCookies),
			NewCustomTokenAuthenticator(customTokens),
		},
		directory:      deps.Directory,
		authorizer:     authorizer,
		diagnoser:      NewDiagnoser(frameworkTokens, cfg.SessionSecret),
		users:          deps.Users,
		sessions:       deps.Sessions,
		customTokens:   customTokens,
		customTokenTTL: ttl,
		metrics:        deps.Metrics,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// AuthenticateRequest folds the authenticators left to right and stops at the
// first principal. Sources are evaluated strictly in sequence.
func (s *iamService) AuthenticateRequest(ctx context.Context, req AuthRequest) (*Principal, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.AuthenticateRequest",
		attribute.Int("authenticator_count", len(s.authenticators)),
	)
	defer span.End()
	start := time.Now()

	for _, a := range s.authenticators {
		if err := ctx.Err(); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		source := string(a.Source())
		principal, err := a.Authenticate(ctx, req)

		switch {
		case err == nil && principal != nil:
			span.SetAttributes(
				attribute.String(telemetry.AttrPrincipalID, principal.UserID),
				attribute.String(telemetry.AttrPrincipalRole, string(principal.Role)),
				attribute.String(telemetry.AttrAuthSource, source),
			)
			telemetry.AddEvent(span, "authentication.succeeded", attribute.String(telemetry.AttrAuthSource, source))
			s.metrics.RecordSource(ctx, source, telemetry.OutcomeAuthenticated)
			s.metrics.RecordResolution(ctx, source, telemetry.OutcomeAuthenticated, time.Since(start))
			return principal, nil

		case err == nil, errors.Is(err, ErrNoCredential):
			s.skip(ctx, span, source, telemetry.OutcomeNoCredential, err)

		case errors.Is(err, ErrInvalidCredential):
			s.logger.WithFields(logrus.Fields{"source": source}).WithError(err).Debug("invalid credential, trying next source")
			s.skip(ctx, span, source, telemetry.OutcomeInvalid, err)

		case errors.Is(err, ErrSourceTimeout):
			s.logger.WithFields(logrus.Fields{"source": source}).WithError(err).Warn("credential source timed out, trying next source")
			s.skip(ctx, span, source, telemetry.OutcomeTimeout, err)

		case ctx.Err() != nil:
			telemetry.RecordError(span, ctx.Err())
			return nil, ctx.Err()

		default:
			if !errors.Is(err, ErrInfrastructure) {
				err = &InfrastructureError{Source: a.Source(), Err: err}
			}
			s.logger.WithFields(logrus.Fields{"source": source}).WithError(err).Error("credential source unavailable, aborting authentication")
			telemetry.RecordError(span, err)
			s.metrics.RecordSource(ctx, source, telemetry.OutcomeInfraError)
			s.metrics.RecordResolution(ctx, source, telemetry.OutcomeInfraError, time.Since(start))
			return nil, err
		}
	}

	telemetry.AddEvent(span, "authentication.no_credentials")
	s.metrics.RecordResolution(ctx, "", telemetry.OutcomeNoCredential, time.Since(start))
	return nil, nil
}

func (s *iamService) skip(ctx context.Context, span trace.Span, source, outcome string, err error) {
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrAuthSource, source),
		attribute.String(telemetry.AttrAuthOutcome, outcome),
	}
	if err != nil {
		attrs = append(attrs, attribute.String(telemetry.AttrAuthReason, err.Error()))
	}
	telemetry.AddEvent(span, "authentication.source_skipped", attrs...)
	s.metrics.RecordSource(ctx, source, outcome)
}

// ResolveRegion implements Service.
func (s *iamService) ResolveRegion(ctx context.Context, p *Principal) (*Principal, error) {
	if p == nil || p.Role != RoleRegionAdmin || p.Region != "" {
		return p, nil
	}
	if p.Source == SourceCustomToken || s.directory == nil {
		return p, nil
	}

	attrs, err := s.directory.ByID(ctx, p.UserID)
	if err != nil {
		if IsNotFound(err) {
			return p, nil
		}
		if errors.Is(err, ErrUnknownRole) {
			// Bad account data, not an outage.
			s.logger.WithError(err).WithField("user_id", p.UserID).Error("directory record rejected")
			return nil, fmt.Errorf("resolve region: %w", err)
		}
		return nil, &InfrastructureError{Source: p.Source, Err: fmt.Errorf("resolve region: %w", err)}
	}
	return p.WithRegion(attrs.Region), nil
}

// Authorize implements Service.
func (s *iamService) Authorize(ctx context.Context, p *Principal, object, action string) error {
	_, span := telemetry.StartSpan(ctx, tracerName, "iam.Authorize",
		attribute.String(telemetry.AttrPolicyObject, object),
		attribute.String(telemetry.AttrPolicyAction, action),
	)
	defer span.End()

	err := s.authorizer.Check(p, object, action)
	span.SetAttributes(attribute.Bool(telemetry.AttrPolicyAllowed, err == nil))
	return err
}

// Login implements Service. Unknown accounts, disabled accounts and wrong
// passwords all return ErrInvalidLogin.
func (s *iamService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.Login")
	defer span.End()

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidLogin
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, &InfrastructureError{Source: SourceCustomToken, Err: fmt.Errorf("login lookup: %w", err)}
	}
	if user.Disabled() || user.PasswordHash == nil {
		return nil, ErrInvalidLogin
	}
	if err := auth.CheckPassword(*user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidLogin
		}
		return nil, err
	}

	role, err := ParseRole(user.Role)
	if err != nil {
		s.logger.WithField("user_id", user.ID).WithError(err).Error("refusing login for account with unknown role")
		return nil, ErrInvalidLogin
	}

	now := s.now()
	token, err := s.customTokens.Issue(auth.CustomTokenClaims{
		UserID: user.ID,
		Role:   string(role),
		Region: user.RegionValue(),
		Email:  user.Email,
	}, s.customTokenTTL)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WithField("user_id", user.ID).WithError(err).Warn("failed to record last login")
	}

	span.SetAttributes(attribute.String(telemetry.AttrPrincipalID, user.ID))
	return &LoginResult{
		Principal: &Principal{
			UserID: user.ID,
			Role:   role,
			Region: user.RegionValue(),
			Email:  user.Email,
			Source: SourceCustomToken,
		},
		Token:     token,
		ExpiresAt: now.Add(s.customTokenTTL),
	}, nil
}

// Logout implements Service. Only session principals have server-side state.
func (s *iamService) Logout(ctx context.Context, p *Principal) error {
	if p == nil || p.Source != SourceSession || p.SessionID == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, p.SessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Diagnose implements Service.
func (s *iamService) Diagnose(req AuthRequest) *DiagnosticReport {
	return s.diagnoser.Diagnose(req)
}
