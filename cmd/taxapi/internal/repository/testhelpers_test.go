package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/bunx"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/migrations"
)

// setupTestDB opens an in-memory SQLite database with the schema applied.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := bunx.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunx.Close(db) })

	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)
	return db
}

func strPtr(s string) *string { return &s }

func createTestUser(t *testing.T, repo UserRepository, email, role string, region *string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: email, Role: role, Region: region}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func newTestSession(userID, tokenHash string, ttl time.Duration) *models.Session {
	return &models.Session{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}
}
