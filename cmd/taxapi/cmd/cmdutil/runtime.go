package cmdutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/config"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/bunx"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/repository"
)

// Env is the configuration and logger resolved by the root command.
type Env struct {
	Config *config.Config
	Logger *logrus.Logger
}

type envKey struct{}

// WithEnv stores env on ctx for subcommands.
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// EnvFrom returns the Env stored by the root command.
func EnvFrom(ctx context.Context) (*Env, error) {
	if ctx == nil {
		return nil, errors.New("command context not initialized")
	}
	env, ok := ctx.Value(envKey{}).(*Env)
	if !ok || env == nil {
		return nil, errors.New("configuration not loaded")
	}
	return env, nil
}

// Stores bundles the database connection with the repositories built on it so
// callers can reuse the connection. Sessions is backed by redis when configured.
type Stores struct {
	DB       *bun.DB
	Users    repository.UserRepository
	Sessions repository.SessionRepository

	redis *redis.Client
}

// Close releases the database connection and the redis client, if any.
func (s *Stores) Close() {
	if s == nil {
		return
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.DB != nil {
		_ = bunx.Close(s.DB)
	}
}

// OpenStores centralizes repository construction for CLI commands.
func OpenStores(ctx context.Context, cfg *config.Config, opts ...bunx.Option) (*Stores, error) {
	db, err := bunx.NewDB(ctx, cfg.DatabaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	stores := &Stores{
		DB:    db,
		Users: repository.NewBunUserRepository(db),
	}

	switch cfg.Sessions.Backend {
	case config.SessionBackendRedis:
		client, err := repository.NewRedisClient(ctx, cfg.Sessions.RedisAddr, cfg.Sessions.RedisDB)
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("session store: %w", err)
		}
		stores.redis = client
		stores.Sessions = repository.NewRedisSessionRepository(client)
	default:
		stores.Sessions = repository.NewBunSessionRepository(db)
	}

	return stores, nil
}
