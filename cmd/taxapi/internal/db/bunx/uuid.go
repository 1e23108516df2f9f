package bunx

import "github.com/google/uuid"

// NewID returns a time-ordered UUIDv7 string for primary keys. IDs are generated
// in Go so that PostgreSQL and SQLite share one schema without database defaults.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
