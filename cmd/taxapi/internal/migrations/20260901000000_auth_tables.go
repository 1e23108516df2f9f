package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260901000000, down_20260901000000)
}

// up_20260901000000 creates the users and sessions tables.
func up_20260901000000(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	if _, err := db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		ForeignKey(`(user_id) REFERENCES users(id) ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func down_20260901000000(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewDropTable().Model((*models.Session)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop sessions table: %w", err)
	}
	if _, err := db.NewDropTable().Model((*models.User)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop users table: %w", err)
	}
	return nil
}
