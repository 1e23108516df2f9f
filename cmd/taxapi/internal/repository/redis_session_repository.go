package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/bunx"
	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/db/models"
)

const redisKeyPrefix = "taxdesk:"

// RedisSessionRepository implements SessionRepository on Redis. Sessions are stored
// as JSON under their token hash and expire with the session. User data is not
// joined; callers resolve Session.UserID themselves.
type RedisSessionRepository struct {
	client *redis.Client
}

var _ SessionRepository = (*RedisSessionRepository)(nil)

// redisSession is the stored record. Field names are part of the storage format.
type redisSession struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TokenHash  string    `json:"token_hash"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	UserAgent  *string   `json:"user_agent,omitempty"`
	IPAddress  *string   `json:"ip_address,omitempty"`
	Revoked    bool      `json:"revoked"`
}

// NewRedisSessionRepository wraps an existing client.
func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client}
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func sessionKey(tokenHash string) string { return redisKeyPrefix + "session:" + tokenHash }
func sessionIDKey(id string) string      { return redisKeyPrefix + "session-id:" + id }
func userSessionsKey(userID string) string {
	return redisKeyPrefix + "user-sessions:" + userID
}

// Create stores a session with a TTL matching its expiry.
func (r *RedisSessionRepository) Create(ctx context.Context, session *models.Session) error {
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = bunx.NewID()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastUsedAt.IsZero() {
		session.LastUsedAt = now
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("create session: already expired")
	}

	data, err := json.Marshal(toRedisSession(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.TokenHash), data, ttl)
	pipe.Set(ctx, sessionIDKey(session.ID), session.TokenHash, ttl)
	pipe.SAdd(ctx, userSessionsKey(session.UserID), session.TokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetByTokenHash loads a session by token hash.
func (r *RedisSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	rec, err := r.load(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

// UpdateLastUsed rewrites last_used_at, keeping the remaining TTL.
func (r *RedisSessionRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	return r.mutate(ctx, id, func(s *redisSession) { s.LastUsedAt = at })
}

// Revoke marks a session revoked, keeping the remaining TTL.
func (r *RedisSessionRepository) Revoke(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(s *redisSession) { s.Revoked = true })
}

// RevokeByUserID revokes every live session of a user.
func (r *RedisSessionRepository) RevokeByUserID(ctx context.Context, userID string) error {
	hashes, err := r.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("list user sessions: %w", err)
	}
	for _, h := range hashes {
		rec, err := r.load(ctx, h)
		if errors.Is(err, ErrNotFound) {
			r.client.SRem(ctx, userSessionsKey(userID), h)
			continue
		}
		if err != nil {
			return err
		}
		rec.Revoked = true
		if err := r.store(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// DeleteExpired only prunes user index entries; Redis expires the records itself.
func (r *RedisSessionRepository) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	var pruned int64
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"user-sessions:*", 100).Iterator()
	for iter.Next(ctx) {
		setKey := iter.Val()
		hashes, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return pruned, fmt.Errorf("list user sessions: %w", err)
		}
		for _, h := range hashes {
			exists, err := r.client.Exists(ctx, sessionKey(h)).Result()
			if err != nil {
				return pruned, fmt.Errorf("check session: %w", err)
			}
			if exists == 0 {
				r.client.SRem(ctx, setKey, h)
				pruned++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("scan user sessions: %w", err)
	}
	return pruned, nil
}

func (r *RedisSessionRepository) mutate(ctx context.Context, id string, fn func(*redisSession)) error {
	hash, err := r.client.Get(ctx, sessionIDKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("resolve session id: %w", err)
	}
	rec, err := r.load(ctx, hash)
	if err != nil {
		return err
	}
	fn(rec)
	return r.store(ctx, rec)
}

func (r *RedisSessionRepository) load(ctx context.Context, tokenHash string) (*redisSession, error) {
	data, err := r.client.Get(ctx, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var rec redisSession
	if err := json.Unmarshal(data, &rec); err != nil {
		r.client.Del(ctx, sessionKey(tokenHash))
		return nil, fmt.Errorf("session: corrupt record dropped: %w", ErrNotFound)
	}
	return &rec, nil
}

func (r *RedisSessionRepository) store(ctx context.Context, rec *redisSession) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(rec.TokenHash), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func toRedisSession(s *models.Session) *redisSession {
	return &redisSession{
		ID:         s.ID,
		UserID:     s.UserID,
		TokenHash:  s.TokenHash,
		ExpiresAt:  s.ExpiresAt,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.LastUsedAt,
		UserAgent:  s.UserAgent,
		IPAddress:  s.IPAddress,
		Revoked:    s.Revoked,
	}
}

func (rs *redisSession) toModel() *models.Session {
	return &models.Session{
		ID:         rs.ID,
		UserID:     rs.UserID,
		TokenHash:  rs.TokenHash,
		ExpiresAt:  rs.ExpiresAt,
		CreatedAt:  rs.CreatedAt,
		LastUsedAt: rs.LastUsedAt,
		UserAgent:  rs.UserAgent,
		IPAddress:  rs.IPAddress,
		Revoked:    rs.Revoked,
	}
}
