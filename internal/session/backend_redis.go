// file: internal/session/backend_redis.go
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/dkoosis/tableside/internal/logging"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "tableside:session"

// RedisBackend stores the session in Redis, for back-office terminals that
// share one login. A session with an expiry is stored with a matching TTL.
type RedisBackend struct {
	client *redis.Client
	key    string
	now    func() time.Time
	logger logging.Logger
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend creates a backend storing under prefix.
func NewRedisBackend(client *redis.Client, prefix string, logger logging.Logger) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisBackend{
		client: client,
		key:    prefix + ":current",
		now:    time.Now,
		logger: logging.OrNoop(logger).WithField("component", "redis_session_backend"),
	}
}

// Save implements Backend.
func (r *RedisBackend) Save(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to encode session")
	}

	var ttl time.Duration
	if !s.ExpiresAt.IsZero() {
		ttl = s.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return errors.Wrap(ErrInvalidSession, "session already expired")
		}
	}

	if err := r.client.Set(ctx, r.key, data, ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save session to redis")
	}
	r.logger.Debug("Saved session to redis.", "key", r.key, "ttl", ttl)
	return nil
}

// Load implements Backend.
func (r *RedisBackend) Load(ctx context.Context) (Session, bool, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, false, nil
		}
		return Session{}, false, errors.Wrap(err, "failed to load session from redis")
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, false, errors.Wrap(err, "failed to parse session from redis")
	}
	return s, true, nil
}

// Delete implements Backend.
func (r *RedisBackend) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return errors.Wrap(err, "failed to delete session from redis")
	}
	return nil
}

// Name implements Backend.
func (r *RedisBackend) Name() string { return config.BackendRedis }
