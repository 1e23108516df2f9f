package iam

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/sirupsen/logrus"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/logging"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/repository"
)

const (
	testSessionSecret = "test-session-secret"
	testTokenSecret   = "test-custom-token-secret"
)

// mockUserRepository for testing
type mockUserRepository struct {
	mu      sync.Mutex
	users   map[string]*models.User // id → user
	err     error
	lookups int
	logins  map[string]time.Time
}

func newMockUserRepository(users ...*models.User) *mockUserRepository {
	m := &mockUserRepository{users: make(map[string]*models.User), logins: make(map[string]time.Time)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepository) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) List(context.Context, repository.UserFilter) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *mockUserRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[id] = at
	return nil
}

func (m *mockUserRepository) SetDisabled(_ context.Context, id string, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if disabled {
		now := time.Now()
		u.DisabledAt = &now
	} else {
		u.DisabledAt = nil
	}
	return nil
}

func (m *mockUserRepository) lookupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

// mockSessionRepository for testing. When block is set, GetByTokenHash waits
// for the context to finish.
type mockSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.Session // tokenHash → session
	err      error
	block    bool
	touched  chan string
	revoked  []string
}

func newMockSessionRepository() *mockSessionRepository {
	return &mockSessionRepository{
		sessions: make(map[string]*models.Session),
		touched:  make(chan string, 8),
	}
}

func (m *mockSessionRepository) Create(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.TokenHash] = session
	return nil
}

func (m *mockSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.sessions[tokenHash]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockSessionRepository) UpdateLastUsed(_ context.Context, id string, _ time.Time) error {
	m.touched <- id
	return nil
}

func (m *mockSessionRepository) Revoke(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			s.Revoked = true
			m.revoked = append(m.revoked, id)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *mockSessionRepository) RevokeByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID {
			s.Revoked = true
		}
	}
	return nil
}

func (m *mockSessionRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, hash)
			n++
		}
	}
	return n, nil
}

// addSession stores a live session for user and returns the raw cookie value.
func (m *mockSessionRepository) addSession(user *models.User) string {
	token, hash, err := auth.GenerateSessionToken()
	if err != nil {
		panic(err)
	}
	now := time.Now()
	m.sessions[hash] = &models.Session{
		ID:         "sess-" + user.ID,
		UserID:     user.ID,
		TokenHash:  hash,
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
		LastUsedAt: now,
		User:       user,
	}
	return token
}

func testUser(id, role string) *models.User {
	return &models.User{ID: id, Email: id + "@example.com", Role: role}
}

func testLogger() logrus.FieldLogger {
	return logging.Discard()
}

func requestWithCookies(cookies ...*http.Cookie) AuthRequest {
	h := http.Header{}
	for _, c := range cookies {
		h.Add("Cookie", c.String())
	}
	return AuthRequest{Headers: h, Cookies: cookies}
}

func sessionCookie(value string) *http.Cookie {
	return &http.Cookie{Name: auth.SessionCookieName, Value: value}
}

func tokenCookie(value string) *http.Cookie {
	return &http.Cookie{Name: auth.CustomTokenCookieName, Value: value}
}

func mustCustomToken(secret string, claims auth.CustomTokenClaims, ttl time.Duration) string {
	codec, err := auth.NewCustomTokenCodec(secret)
	if err != nil {
		panic(err)
	}
	tok, err := codec.Issue(claims, ttl)
	if err != nil {
		panic(err)
	}
	return tok
}

func mustFrameworkToken(secret string, claims auth.FrameworkTokenClaims, ttl time.Duration) string {
	codec, err := auth.NewFrameworkTokenCodec(secret)
	if err != nil {
		panic(err)
	}
	tok, err := codec.Encode(claims, ttl)
	if err != nil {
		panic(err)
	}
	return tok
}

// mustRawFrameworkToken encrypts payload exactly as given, without the exp and
// iat claims Encode always adds.
func mustRawFrameworkToken(secret string, payload map[string]any) string {
	key, err := auth.DeriveEncryptionKey(secret)
	if err != nil {
		panic(err)
	}
	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: key},
		(&jose.EncrypterOptions{}).WithType("JWT"),
	)
	if err != nil {
		panic(err)
	}
	tok, err := josejwt.Encrypted(enc).Claims(payload).Serialize()
	if err != nil {
		panic(err)
	}
	return tok
}

// mockAuthenticator for testing
type mockAuthenticator struct {
	source    CredentialSource
	principal *Principal
	err       error
	calls     int
}

func (m *mockAuthenticator) Source() CredentialSource { return m.source }

func (m *mockAuthenticator) Authenticate(context.Context, AuthRequest) (*Principal, error) {
	m.calls++
	return m.principal, m.err
}

func newFoldService(authenticators ...Authenticator) *iamService {
	return &iamService{
		authenticators: authenticators,
		logger:         testLogger(),
		now:            time.Now,
	}
}
