package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/bunx"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/logging"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/migrations"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/repository"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

const (
	testSessionSecret = "router-test-session-secret"
	testTokenSecret   = "router-test-token-secret"
	testPassword      = "correct horse battery"
)

type testEnv struct {
	db       *bun.DB
	handler  http.Handler
	users    repository.UserRepository
	sessions repository.SessionRepository
}

func newTestEnv(t *testing.T, diagnostics bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := bunx.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunx.Close(db) })
	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)

	users := repository.NewBunUserRepository(db)
	sessions := repository.NewBunSessionRepository(db)

	svc, err := iam.NewIAMService(iam.ServiceDependencies{
		Users:     users,
		Sessions:  sessions,
		Directory: iam.NewCachedUserDirectory(users, 16, time.Minute),
		Logger:    logging.Discard(),
	}, iam.AuthenticatorConfig{
		SessionSecret:        testSessionSecret,
		CustomTokenSecret:    testTokenSecret,
		SessionLookupTimeout: time.Second,
		CustomTokenTTL:       time.Hour,
	})
	require.NoError(t, err)

	return &testEnv{
		handler: NewRouter(RouterOptions{
			IAMService:  svc,
			Logger:      logging.Discard(),
			Diagnostics: diagnostics,
		}),
		users:    users,
		sessions: sessions,
		db:       db,
	}
}

func (e *testEnv) createUser(t *testing.T, email, role string, region *string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	u := &models.User{Email: email, Name: email, Role: role, Region: region, PasswordHash: &hash}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) createSession(t *testing.T, user *models.User) string {
	t.Helper()
	token, hash, err := auth.GenerateSessionToken()
	require.NoError(t, err)
	require.NoError(t, e.sessions.Create(context.Background(), &models.Session{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}))
	return token
}

func (e *testEnv) do(method, target string, body []byte, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func customToken(t *testing.T, secret string, claims auth.CustomTokenClaims) *http.Cookie {
	t.Helper()
	codec, err := auth.NewCustomTokenCodec(secret)
	require.NoError(t, err)
	tok, err := codec.Issue(claims, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CustomTokenCookieName, Value: tok}
}

func sessionCookie(token string) *http.Cookie {
	return &http.Cookie{Name: auth.SessionCookieName, Value: token}
}

func strPtr(s string) *string { return &s }

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestLoginWhoAmILogout(t *testing.T) {
	env := newTestEnv(t, false)
	env.createUser(t, "ra@example.com", "regionAdmin", strPtr("west"))

	body, _ := json.Marshal(LoginRequest{Email: "ra@example.com", Password: testPassword})
	rec := env.do(http.MethodPost, "/api/auth/login", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.Equal(t, "regionAdmin", login.User.Role)
	assert.Equal(t, "west", login.User.Region)

	var tokenCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CustomTokenCookieName {
			tokenCookie = c
		}
	}
	require.NotNil(t, tokenCookie, "login must set the token cookie")
	assert.True(t, tokenCookie.HttpOnly)

	rec = env.do(http.MethodGet, "/api/auth/whoami", nil, tokenCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var who PrincipalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &who))
	assert.Equal(t, string(iam.SourceCustomToken), who.Source)
	assert.Equal(t, "west", who.Region)

	rec = env.do(http.MethodPost, "/api/auth/logout", nil, tokenCookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	body, _ = json.Marshal(LoginRequest{Email: "ra@example.com", Password: "wrong password"})
	rec = env.do(http.MethodPost, "/api/auth/login", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/login", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWhoAmI_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodGet, "/api/auth/whoami", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/auth/whoami", nil,
		customToken(t, "not-the-token-secret", auth.CustomTokenClaims{UserID: "u2", Role: "admin"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionLogoutRevokes(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.createUser(t, "u1@example.com", "", nil)
	session := sessionCookie(env.createSession(t, user))

	rec := env.do(http.MethodGet, "/api/auth/whoami", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	var who PrincipalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &who))
	assert.Equal(t, "user", who.Role)
	assert.Equal(t, string(iam.SourceSession), who.Source)

	rec = env.do(http.MethodPost, "/api/auth/logout", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/auth/whoami", nil, session)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func clearedCookies(rec *httptest.ResponseRecorder) map[string]bool {
	cleared := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 && c.Value == "" {
			cleared[c.Name] = true
		}
	}
	return cleared
}

func TestLogoutClearsCookiesWhileStoreDown(t *testing.T) {
	env := newTestEnv(t, false)
	user := env.createUser(t, "u1@example.com", "", nil)
	session := sessionCookie(env.createSession(t, user))
	token := customToken(t, testTokenSecret, auth.CustomTokenClaims{UserID: user.ID, Role: "user"})

	require.NoError(t, env.db.Close())

	rec := env.do(http.MethodGet, "/api/auth/whoami", nil, session, token)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/logout", nil, session, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	cleared := clearedCookies(rec)
	assert.True(t, cleared[auth.CustomTokenCookieName])
	assert.True(t, cleared[auth.SessionCookieName])
}

func TestLogoutWithoutCredentials(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, clearedCookies(rec)[auth.CustomTokenCookieName])
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t, false)
	admin := env.createUser(t, "admin@example.com", "admin", nil)
	regionAdmin := env.createUser(t, "ra@example.com", "regionAdmin", strPtr("west"))
	unassigned := env.createUser(t, "ra2@example.com", "regionAdmin", nil)
	user := env.createUser(t, "user@example.com", "user", nil)

	tests := []struct {
		name       string
		target     string
		cookie     *http.Cookie
		wantStatus int
		wantBody   string
	}{
		{name: "overview unauthenticated", target: "/api/admin/overview", wantStatus: http.StatusUnauthorized},
		{name: "overview user", target: "/api/admin/overview", cookie: sessionCookie(env.createSession(t, user)), wantStatus: http.StatusForbidden},
		{name: "overview admin", target: "/api/admin/overview", cookie: sessionCookie(env.createSession(t, admin)), wantStatus: http.StatusOK, wantBody: `"scope":"all"`},
		{name: "overview region admin session", target: "/api/admin/overview", cookie: sessionCookie(env.createSession(t, regionAdmin)), wantStatus: http.StatusOK, wantBody: `"scope":"west"`},
		{name: "overview unassigned region admin", target: "/api/admin/overview", cookie: sessionCookie(env.createSession(t, unassigned)), wantStatus: http.StatusConflict, wantBody: "region admin not assigned to a region"},
		{name: "region own", target: "/api/admin/regions/west", cookie: sessionCookie(env.createSession(t, regionAdmin)), wantStatus: http.StatusOK},
		{name: "region other", target: "/api/admin/regions/east", cookie: sessionCookie(env.createSession(t, regionAdmin)), wantStatus: http.StatusForbidden},
		{name: "region admin anywhere", target: "/api/admin/regions/east", cookie: sessionCookie(env.createSession(t, admin)), wantStatus: http.StatusOK},
		{name: "region user", target: "/api/admin/regions/west", cookie: sessionCookie(env.createSession(t, user)), wantStatus: http.StatusForbidden},
		{
			name:       "region custom token without region claim",
			target:     "/api/admin/regions/west",
			cookie:     customToken(t, testTokenSecret, auth.CustomTokenClaims{UserID: "u2", Role: "regionAdmin"}),
			wantStatus: http.StatusConflict,
			wantBody:   "region admin not assigned to a region",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookies []*http.Cookie
			if tt.cookie != nil {
				cookies = append(cookies, tt.cookie)
			}
			rec := env.do(http.MethodGet, tt.target, nil, cookies...)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestDiagnosticsRoute(t *testing.T) {
	off := newTestEnv(t, false)
	assert.Equal(t, http.StatusNotFound, off.do(http.MethodGet, "/debug/auth", nil).Code)

	on := newTestEnv(t, true)
	rec := on.do(http.MethodGet, "/debug/auth", nil, sessionCookie("opaque"))
	require.Equal(t, http.StatusOK, rec.Code)

	var report iam.DiagnosticReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Found)
	assert.False(t, report.Verified)
	assert.Equal(t, iam.SourceDiagnostic, report.Source)
}
