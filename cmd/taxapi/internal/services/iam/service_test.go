package iam

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
)

type serviceFixture struct {
	svc      Service
	users    *mockUserRepository
	sessions *mockSessionRepository
}

func newServiceFixture(t *testing.T, users ...*models.User) *serviceFixture {
	t.Helper()
	userRepo := newMockUserRepository(users...)
	sessionRepo := newMockSessionRepository()

	svc, err := NewIAMService(ServiceDependencies{
		Users:     userRepo,
		Sessions:  sessionRepo,
		Directory: NewCachedUserDirectory(userRepo, 16, time.Minute),
		Logger:    testLogger(),
	}, AuthenticatorConfig{
		SessionSecret:        testSessionSecret,
		CustomTokenSecret:    testTokenSecret,
		SessionLookupTimeout: 50 * time.Millisecond,
		CustomTokenTTL:       time.Hour,
	})
	if err != nil {
		t.Fatalf("NewIAMService: %v", err)
	}
	return &serviceFixture{svc: svc, users: userRepo, sessions: sessionRepo}
}

func TestNewIAMService_RejectsSharedSecret(t *testing.T) {
	_, err := NewIAMService(ServiceDependencies{Logger: testLogger()}, AuthenticatorConfig{
		SessionSecret:     "same",
		CustomTokenSecret: "same",
	})
	if err == nil {
		t.Fatal("Expected error for identical secrets")
	}
}

// TestAuthenticateRequest_SessionScenario: session {u1, admin} and no token.
func TestAuthenticateRequest_SessionScenario(t *testing.T) {
	user := testUser("u1", "admin")
	f := newServiceFixture(t, user)
	token := f.sessions.addSession(user)

	principal, err := f.svc.AuthenticateRequest(context.Background(), requestWithCookies(sessionCookie(token)))
	if err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
	if principal == nil || principal.UserID != "u1" || principal.Role != RoleAdmin {
		t.Fatalf("Expected u1/admin, got %+v", principal)
	}
}

// TestAuthenticateRequest_FrameworkToken: no session, valid framework token.
func TestAuthenticateRequest_FrameworkToken(t *testing.T) {
	f := newServiceFixture(t)
	token := mustFrameworkToken(testSessionSecret, auth.FrameworkTokenClaims{Subject: "u3", Role: "regionAdmin"}, time.Hour)

	principal, err := f.svc.AuthenticateRequest(context.Background(), requestWithCookies(sessionCookie(token)))
	if err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
	if principal == nil || principal.UserID != "u3" || principal.Source != SourceFrameworkToken {
		t.Fatalf("Expected framework principal u3, got %+v", principal)
	}
}

// TestAuthenticateRequest_CustomTokenWrongSecret: no session, token signed with the wrong secret.
func TestAuthenticateRequest_CustomTokenWrongSecret(t *testing.T) {
	f := newServiceFixture(t)

	for _, secret := range []string{"wrong-secret", testSessionSecret} {
		token := mustCustomToken(secret, auth.CustomTokenClaims{UserID: "u2", Role: "admin"}, time.Hour)
		principal, err := f.svc.AuthenticateRequest(context.Background(), requestWithCookies(tokenCookie(token)))
		if err != nil {
			t.Fatalf("Expected no error for secret %q, got: %v", secret, err)
		}
		if principal != nil {
			t.Errorf("Expected no principal for secret %q, got %+v", secret, principal)
		}
	}
}

// TestAuthenticateRequest_ExpiredOrTamperedToken: nothing else presented.
func TestAuthenticateRequest_ExpiredOrTamperedToken(t *testing.T) {
	f := newServiceFixture(t)
	valid := mustCustomToken(testTokenSecret, auth.CustomTokenClaims{UserID: "u2", Role: "admin"}, time.Hour)

	for name, token := range map[string]string{
		"expired":  mustCustomToken(testTokenSecret, auth.CustomTokenClaims{UserID: "u2"}, -time.Hour),
		"tampered": valid[:len(valid)-4] + "AAAA",
	} {
		principal, err := f.svc.AuthenticateRequest(context.Background(), requestWithCookies(tokenCookie(token)))
		if err != nil {
			t.Fatalf("%s: expected no error, got: %v", name, err)
		}
		if principal != nil {
			t.Errorf("%s: expected no principal, got %+v", name, principal)
		}
	}
}

// TestAuthenticateRequest_RegionAdminWithoutRegion: custom token {u2, regionAdmin}
// with no region claim must fail region checks with ErrMisconfiguredRegion.
func TestAuthenticateRequest_RegionAdminWithoutRegion(t *testing.T) {
	f := newServiceFixture(t)
	token := mustCustomToken(testTokenSecret, auth.CustomTokenClaims{UserID: "u2", Role: "regionAdmin"}, time.Hour)

	principal, err := f.svc.AuthenticateRequest(context.Background(), requestWithCookies(tokenCookie(token)))
	if err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
	if principal == nil || principal.UserID != "u2" || principal.Role != RoleRegionAdmin || principal.Region != "" {
		t.Fatalf("Expected u2/regionAdmin without region, got %+v", principal)
	}

	resolved, err := f.svc.ResolveRegion(context.Background(), principal)
	if err != nil {
		t.Fatalf("ResolveRegion: %v", err)
	}
	err = RequireRegion(resolved, "west")
	if !errors.Is(err, ErrMisconfiguredRegion) {
		t.Fatalf("Expected ErrMisconfiguredRegion, got: %v", err)
	}
	if errors.Is(err, ErrInsufficientRole) {
		t.Error("Misconfigured region must not be reported as a plain denial")
	}
}

// TestAuthenticateRequest_SessionBeatsCustomToken: priority holds regardless of role.
func TestAuthenticateRequest_SessionBeatsCustomToken(t *testing.T) {
	user := testUser("u1", "user")
	f := newServiceFixture(t, user)
	session := f.sessions.addSession(user)
	token := mustCustomToken(testTokenSecret, auth.CustomTokenClaims{UserID: "u9", Role: "admin"}, time.Hour)

	principal, err := f.svc.AuthenticateRequest(context.Background(),
		requestWithCookies(tokenCookie(token), sessionCookie(session)))
	if err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
	if principal == nil || principal.UserID != "u1" || principal.Role != RoleUser {
		t.Fatalf("Expected session principal u1/user, got %+v", principal)
	}
	if principal.Source != SourceSession {
		t.Errorf("Expected session source, got %s", principal.Source)
	}
}

// TestAuthenticateRequest_SessionTimeoutFallsBack: a slow store hands over to the custom token.
func TestAuthenticateRequest_SessionTimeoutFallsBack(t *testing.T) {
	f := newServiceFixture(t)
	f.sessions.block = true
	token := mustCustomToken(testTokenSecret, auth.CustomTokenClaims{UserID: "u2", Role: "user"}, time.Hour)

	principal, err := f.svc.AuthenticateRequest(context.Background(),
		requestWithCookies(sessionCookie("abc123"), tokenCookie(token)))
	if err != nil {
		t.Fatalf("Expected fallback after timeout, got: %v", err)
	}
	if principal == nil || principal.UserID != "u2" {
		t.Fatalf("Expected custom token principal, got %+v", principal)
	}
}

// TestAuthenticateRequest_StoreUnreachable: an outage aborts even with a valid custom token.
func TestAuthenticateRequest_StoreUnreachable(t *testing.T) {
	f := newServiceFixture(t)
	f.sessions.err = errors.New("connection refused")
	token := mustCustomToken(testTokenSecret, auth.CustomTokenClaims{UserID: "u2", Role: "admin"}, time.Hour)

	principal, err := f.svc.AuthenticateRequest(context.Background(),
		requestWithCookies(sessionCookie("abc123"), tokenCookie(token)))
	if !errors.Is(err, ErrInfrastructure) {
		t.Fatalf("Expected ErrInfrastructure, got: %v", err)
	}
	if principal != nil {
		t.Errorf("Expected nil principal, got %+v", principal)
	}
}

// TestAuthenticateRequest_Idempotent: identical requests yield identical principals.
func TestAuthenticateRequest_Idempotent(t *testing.T) {
	user := testUser("u1", "")
	f := newServiceFixture(t, user)
	session := f.sessions.addSession(user)
	token := mustCustomToken(testTokenSecret, auth.CustomTokenClaims{UserID: "u2", Role: "regionAdmin", Region: "east"}, time.Hour)

	for _, req := range []AuthRequest{
		requestWithCookies(sessionCookie(session)),
		requestWithCookies(tokenCookie(token)),
	} {
		first, err := f.svc.AuthenticateRequest(context.Background(), req)
		if err != nil {
			t.Fatalf("AuthenticateRequest: %v", err)
		}
		second, err := f.svc.AuthenticateRequest(context.Background(), req)
		if err != nil {
			t.Fatalf("AuthenticateRequest: %v", err)
		}
		if first == second {
			t.Error("Expected a fresh principal per call")
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Expected identical principals, got %+v and %+v", first, second)
		}
	}
}

func TestResolveRegion(t *testing.T) {
	west := "west"
	assigned := testUser("ra1", "regionAdmin")
	assigned.Region = &west
	unassigned := testUser("ra2", "regionAdmin")
	f := newServiceFixture(t, assigned, unassigned)

	tests := []struct {
		name       string
		principal  *Principal
		wantRegion string
	}{
		{name: "session region admin", principal: &Principal{UserID: "ra1", Role: RoleRegionAdmin, Source: SourceSession}, wantRegion: "west"},
		{name: "framework region admin", principal: &Principal{UserID: "ra1", Role: RoleRegionAdmin, Source: SourceFrameworkToken}, wantRegion: "west"},
		{name: "unassigned region admin", principal: &Principal{UserID: "ra2", Role: RoleRegionAdmin, Source: SourceSession}},
		{name: "unknown account", principal: &Principal{UserID: "ghost", Role: RoleRegionAdmin, Source: SourceSession}},
		{name: "custom token is never enriched", principal: &Principal{UserID: "ra1", Role: RoleRegionAdmin, Source: SourceCustomToken}},
		{name: "claimed region kept", principal: &Principal{UserID: "ra1", Role: RoleRegionAdmin, Region: "east", Source: SourceSession}, wantRegion: "east"},
		{name: "admin untouched", principal: &Principal{UserID: "ra1", Role: RoleAdmin, Source: SourceSession}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := *tt.principal
			got, err := f.svc.ResolveRegion(context.Background(), tt.principal)
			if err != nil {
				t.Fatalf("ResolveRegion: %v", err)
			}
			if got.Region != tt.wantRegion {
				t.Errorf("Expected region %q, got %q", tt.wantRegion, got.Region)
			}
			if *tt.principal != before {
				t.Error("ResolveRegion must not mutate its input")
			}
		})
	}

	t.Run("directory record with unknown role", func(t *testing.T) {
		f := newServiceFixture(t, testUser("ra3", "root"))
		_, err := f.svc.ResolveRegion(context.Background(), &Principal{UserID: "ra3", Role: RoleRegionAdmin, Source: SourceFrameworkToken})
		if !errors.Is(err, ErrUnknownRole) {
			t.Errorf("Expected ErrUnknownRole, got: %v", err)
		}
		if errors.Is(err, ErrInfrastructure) {
			t.Errorf("Data error must not be reported as infrastructure: %v", err)
		}
	})

	t.Run("directory unavailable", func(t *testing.T) {
		f := newServiceFixture(t)
		f.users.err = errors.New("connection refused")
		_, err := f.svc.ResolveRegion(context.Background(), &Principal{UserID: "ra1", Role: RoleRegionAdmin, Source: SourceSession})
		if !errors.Is(err, ErrInfrastructure) {
			t.Errorf("Expected ErrInfrastructure, got: %v", err)
		}
	})
}

func TestLogin(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	east := "east"
	user := testUser("u5", "regionAdmin")
	user.PasswordHash = &hash
	user.Region = &east

	disabledAt := time.Now()
	disabled := testUser("u6", "user")
	disabled.PasswordHash = &hash
	disabled.DisabledAt = &disabledAt

	f := newServiceFixture(t, user, disabled)

	result, err := f.svc.Login(context.Background(), "U5@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.Token == "" || result.ExpiresAt.IsZero() {
		t.Fatalf("Expected token and expiry, got %+v", result)
	}
	if result.Principal.UserID != "u5" || result.Principal.Region != "east" {
		t.Errorf("Expected principal u5 in east, got %+v", result.Principal)
	}
	if _, ok := f.users.logins["u5"]; !ok {
		t.Error("Expected last login to be recorded")
	}

	// The issued token authenticates through the chain.
	principal, err := f.svc.AuthenticateRequest(context.Background(), requestWithCookies(tokenCookie(result.Token)))
	if err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
	if principal == nil || principal.UserID != "u5" || principal.Role != RoleRegionAdmin || principal.Region != "east" {
		t.Errorf("Expected u5/regionAdmin/east, got %+v", principal)
	}

	for name, tc := range map[string][2]string{
		"wrong password": {"u5@example.com", "wrong password!"},
		"unknown email":  {"nobody@example.com", "correct horse battery"},
		"disabled":       {"u6@example.com", "correct horse battery"},
	} {
		if _, err := f.svc.Login(context.Background(), tc[0], tc[1]); !errors.Is(err, ErrInvalidLogin) {
			t.Errorf("%s: expected ErrInvalidLogin, got: %v", name, err)
		}
	}
}

func TestLogout(t *testing.T) {
	user := testUser("u1", "user")
	f := newServiceFixture(t, user)
	token := f.sessions.addSession(user)

	principal, err := f.svc.AuthenticateRequest(context.Background(), requestWithCookies(sessionCookie(token)))
	if err != nil || principal == nil {
		t.Fatalf("AuthenticateRequest: %+v, %v", principal, err)
	}
	if err := f.svc.Logout(context.Background(), principal); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	principal, err = f.svc.AuthenticateRequest(context.Background(), requestWithCookies(sessionCookie(token)))
	if err != nil {
		t.Fatalf("AuthenticateRequest: %v", err)
	}
	if principal != nil {
		t.Errorf("Expected revoked session not to authenticate, got %+v", principal)
	}

	if err := f.svc.Logout(context.Background(), &Principal{UserID: "u2", Source: SourceCustomToken}); err != nil {
		t.Errorf("Expected token logout to be a no-op, got: %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	f := newServiceFixture(t)

	if err := f.svc.Authorize(context.Background(), &Principal{UserID: "a", Role: RoleAdmin}, auth.ObjectOverview, auth.ActionRead); err != nil {
		t.Errorf("Expected admin to read overview, got: %v", err)
	}
	err := f.svc.Authorize(context.Background(), &Principal{UserID: "u", Role: RoleUser}, auth.ObjectOverview, auth.ActionRead)
	if !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("Expected ErrInsufficientRole, got: %v", err)
	}
	if err := f.svc.Authorize(context.Background(), nil, auth.ObjectOverview, auth.ActionRead); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated, got: %v", err)
	}
}
