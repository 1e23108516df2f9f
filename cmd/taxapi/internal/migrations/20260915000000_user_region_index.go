package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260915000000, down_20260915000000)
}

// up_20260915000000 indexes users by role and region for the admin overview.
func up_20260915000000(ctx context.Context, db *bun.DB) error {
	stmt := `CREATE INDEX IF NOT EXISTS idx_users_role_region ON users(role, region)`
	if IsPostgreSQL(db) {
		// Only region admins carry a region.
		stmt = `CREATE INDEX IF NOT EXISTS idx_users_role_region ON users(role, region) WHERE region IS NOT NULL`
	}
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create users role/region index: %w", err)
	}
	return nil
}

func down_20260915000000(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, `DROP INDEX IF EXISTS idx_users_role_region`); err != nil {
		return fmt.Errorf("failed to drop users role/region index: %w", err)
	}
	return nil
}
